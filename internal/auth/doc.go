// Package auth provides authentication and authorisation for the
// hands-free API.
//
// Access is modelled on the two Bluetooth permission tiers: reading headset
// state (headset:read) and changing it (headset:admin). Operators are
// configured in config.yaml with Argon2id password hashes; a successful
// login yields a short-lived HS256 JWT carrying the operator's role.
// Permissions are derived from the role at request time, so no database
// lookup is needed to authorise a call.
package auth
