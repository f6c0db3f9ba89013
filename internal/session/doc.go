// Package session manages the single wallet identity a fundgate process
// receives funds with.
//
// The session moves Absent -> Initializing -> Active. The first caller of
// EnsureActive starts initialisation; callers arriving meanwhile wait on the
// same attempt. The root key comes from, in order:
//
//  1. an externally configured private key (never persisted),
//  2. the saved key file,
//  3. a freshly generated key, saved once the attempt commits.
//
// Reset returns to Absent from any state and deletes the key file. An
// attempt that finishes after a reset is discarded without persisting.
package session
