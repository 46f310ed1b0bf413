// Package identity owns Pulse user accounts: creation, lookup by login, and
// the stored password hash used to authenticate them.
//
// Password hashing lives in cmd/security/password; this package only persists the result.
package identity
