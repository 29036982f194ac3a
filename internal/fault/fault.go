// Package fault defines the error taxonomy shared by the install, registry,
// data path, and launch components.
//
// Every failure surfaced to a caller is a *Error carrying a Kind. Callers match
// on the kind with errors.Is:
//
//	if errors.Is(err, fault.InsufficientStorage) {
//	    // ask the user to free space
//	}
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is the zero Kind and never produced on purpose.
	Unknown Kind = iota
	InsufficientStorage
	InstallPathError
	DownloadFailed
	ExtractionFailed
	DataSetupFailed
	ValidationFailed
	InstallAlreadyInProgress
	Cancelled
	RegistryCorrupt
	RegistryIOError
	PathError
	LaunchError
	// VersionBusy reports that another operation (install, uninstall, or a
	// running process) currently holds the version.
	VersionBusy
	// NotInstalled reports an operation on a version with no registry entry.
	NotInstalled
)

var kindNames = map[Kind]string{
	Unknown:                  "Unknown",
	InsufficientStorage:      "InsufficientStorage",
	InstallPathError:         "InstallPathError",
	DownloadFailed:           "DownloadFailed",
	ExtractionFailed:         "ExtractionFailed",
	DataSetupFailed:          "DataSetupFailed",
	ValidationFailed:         "ValidationFailed",
	InstallAlreadyInProgress: "InstallAlreadyInProgress",
	Cancelled:                "Cancelled",
	RegistryCorrupt:          "RegistryCorrupt",
	RegistryIOError:          "RegistryIOError",
	PathError:                "PathError",
	LaunchError:              "LaunchError",
	VersionBusy:              "VersionBusy",
	NotInstalled:             "NotInstalled",
}

var kindStatus = map[Kind]string{
	Unknown:                  "Unexpected error",
	InsufficientStorage:      "Not enough free space for this version",
	InstallPathError:         "Could not prepare the install directory",
	DownloadFailed:           "Download failed",
	ExtractionFailed:         "Could not unpack the game files",
	DataSetupFailed:          "Could not link shared game data",
	ValidationFailed:         "Installed files are incomplete",
	InstallAlreadyInProgress: "This version is already being installed",
	Cancelled:                "Installation cancelled",
	RegistryCorrupt:          "Installed versions list is damaged",
	RegistryIOError:          "Could not save installed versions list",
	PathError:                "Could not use the selected data folder",
	LaunchError:              "Could not start the game",
	VersionBusy:              "This version is busy",
	NotInstalled:             "This version is not installed",
}

// String returns the identifier of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status returns the user-facing status line for the kind.
func (k Kind) Status() string {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return kindStatus[Unknown]
}

// Error lets a bare Kind be used as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "install", "registry.save"
	Version string // version the operation was acting on, if any
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Version != "" {
		msg += " (" + e.Version + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target Kind, or another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New builds a classified error.
func New(kind Kind, op, version string, err error) *Error {
	return &Error{Kind: kind, Op: op, Version: version, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, version, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Version: version, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}
