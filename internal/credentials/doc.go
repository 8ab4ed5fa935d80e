// Package credentials persists per-user Google OAuth credentials and the
// pending authorization that links a browser callback back to a chat.
//
// Each user has one versioned JSON record holding an optional credential and
// an optional pending authorization. Records live in a Backend: a directory of
// JSON files, an embedded badger database, a valkey server or process memory.
//
// Store.Load never hands out a credential without checking its expiry. An
// expired credential is refreshed through the configured Refresher and written
// back; a credential that cannot be refreshed is deleted so that the user is
// asked to authorize again.
//
// All read-modify-write sequences for a user run under that user's mutex.
// Different users never contend.
package credentials
