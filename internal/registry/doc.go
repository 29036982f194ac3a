// Package registry owns the durable list of installed versions.
//
// The manifest is a single JSON document rewritten in full on every Save
// (write temp file, fsync, rename, fsync directory), so a crash leaves either
// the old or the new manifest on disk and never a mix. Saves are serialized
// in-process with a mutex and across processes with an advisory flock on a
// sibling lock file.
//
// All mutating calls are in-memory only until Save succeeds.
package registry
