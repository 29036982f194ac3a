// Package version models installable game versions.
//
// A Version is a semantic version ("1.21.0") ordered with golang.org/x/mod/semver.
// A Descriptor is the immutable description of one installable package as the
// package source reports it. Catalog fetches the list of descriptors from the
// package source's JSON index.
package version
