// Package credentials stores the OAuth token pair of every participant.
//
// A Record is keyed by identity (the participant's calendar email) and is only
// ever replaced whole. The Store interface is implemented by an in-memory
// store for tests and single-process use, and by the SQL backed store in the
// sqlstore subpackage.
//
// Operations on different identities never contend with each other;
// operations on the same identity are serialized and the last writer wins.
package credentials
