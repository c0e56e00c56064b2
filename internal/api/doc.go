// Package api implements the HTTP REST API and WebSocket stream for the
// hands-free service.
//
// This package provides:
//   - REST endpoints for every inbound headset call (connect, audio routing,
//     voice recognition, virtual calls, priorities, session updates)
//   - Transition history and operator audit queries
//   - WebSocket hub broadcasting every state transition
//   - JWT authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Result contract
//
// Headset commands report acceptance as {"ok": bool} with status 200. A
// refused command is not an HTTP error; only malformed requests (bad address,
// unknown state name, invalid JSON) produce 4xx responses.
//
// # Security
//
// Read routes need headset:read and mutating routes need headset:admin.
// Tokens are issued by POST /api/v1/auth/login for operators listed in
// config.yaml. WebSocket connections use single-use tickets so the token
// never appears in a URL. Every mutating admin request is written to the
// audit log with the operator who made it.
package api
