// Package auth issues and verifies the bearer tokens that protect the
// status API's write endpoints.
//
// Tokens are HS256 JWTs signed with the configured secret. There are no user
// accounts: a token names its holder in the subject and carries a role.
// Operators may send commands and start discovery; viewers may only read.
package auth
