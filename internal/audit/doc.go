// Package audit records what operators did through the admin API.
//
// Every state-changing request (connect, priority change, audio routing,
// session updates) is written to the audit_logs table together with the
// operator's identity and the HTTP status the request ended with. Refused
// gatekeeper decisions still appear: the request itself succeeded, the
// service just said no.
package audit
