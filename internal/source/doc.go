// Package source fetches game packages.
//
// The installer only depends on the Downloader interface. HTTPDownloader is
// the production implementation: it resolves a package URL from a template,
// retries transient failures, reports byte progress and verifies the result
// against an OpenPGP keyring or the descriptor's SHA-256 digest before the
// archive is handed to extraction.
package source
