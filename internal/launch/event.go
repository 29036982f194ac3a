package launch

import (
	"time"

	"github.com/allycraft/allycraft/internal/version"
)

// EventKind classifies a process event.
type EventKind int

const (
	// Launched is emitted once the process has started.
	Launched EventKind = iota
	// Exited is a clean, zero-status exit.
	Exited
	// Crashed is a non-zero or signal exit that nobody asked for.
	Crashed
	// Stopped is an exit caused by Handle.Stop.
	Stopped
)

func (k EventKind) String() string {
	switch k {
	case Launched:
		return "launched"
	case Exited:
		return "exited"
	case Crashed:
		return "crashed"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Event is a process lifecycle notification.
type Event struct {
	Kind     EventKind
	Version  version.Version
	PID      int
	ExitCode int // -1 when killed by a signal
	// Diagnostic describes a crash: exit status and the tail of stderr.
	Diagnostic string
	Time       time.Time
}
