// Package password hashes and verifies Pulse account passwords with Argon2id.
//
// Hashes use the PHC string format
// ($argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>) and are treated as
// untrusted input on verify: parameters far above the configured cost are refused.
package password
