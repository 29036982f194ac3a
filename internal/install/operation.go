package install

import (
	"context"
	"sync"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/version"
)

// eventBuffer is the capacity of an operation's event channel.
const eventBuffer = 32

// Progress is one install event.
type Progress struct {
	ID      string
	Version version.Version
	Stage   Stage
	Percent float64
	Status  string
	// Err is set on Failed and Cancelled events.
	Err error
}

// Operation is a running install.
//
// Events are delivered in order with non-decreasing Percent. A consumer that
// falls behind loses the oldest buffered events, never the terminal one, which
// is always last; the channel is closed after it.
type Operation struct {
	id      string
	version version.Version
	cancel  context.CancelFunc
	events  chan Progress
	done    chan struct{}

	mu      sync.Mutex
	last    Progress
	record  registry.Record
	err     error
	percent float64
}

func newOperation(id string, v version.Version, cancel context.CancelFunc) *Operation {
	return &Operation{
		id:      id,
		version: v,
		cancel:  cancel,
		events:  make(chan Progress, eventBuffer),
		done:    make(chan struct{}),
		last:    Progress{ID: id, Version: v, Stage: CheckingSpace, Status: CheckingSpace.Status()},
	}
}

// ID returns the operation id, shared with its journal entry.
func (o *Operation) ID() string { return o.id }

// Version returns the version being installed.
func (o *Operation) Version() version.Version { return o.version }

// Events returns the progress channel.
func (o *Operation) Events() <-chan Progress { return o.events }

// Done is closed when the pipeline has finished and cleaned up.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Cancel requests cooperative cancellation. It does not wait.
func (o *Operation) Cancel() { o.cancel() }

// Last returns the most recent event.
func (o *Operation) Last() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Wait blocks until the install finishes or ctx is done. Leaving early does not
// cancel the install.
func (o *Operation) Wait(ctx context.Context) (registry.Record, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		return registry.Record{}, ctx.Err()
	}
}

// Result returns the outcome of a finished operation.
func (o *Operation) Result() (registry.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record, o.err
}

// report publishes a working-stage event. Percent never moves backwards.
func (o *Operation) report(stage Stage, percent float64) {
	o.mu.Lock()
	if percent < o.percent {
		percent = o.percent
	}
	o.percent = percent
	ev := Progress{ID: o.id, Version: o.version, Stage: stage, Percent: percent, Status: stage.Status()}
	o.last = ev
	o.mu.Unlock()
	o.send(ev)
}

// finish publishes the terminal event, records the result and closes the
// channel. Progress on failure stays where it was.
func (o *Operation) finish(rec registry.Record, err error) {
	o.mu.Lock()
	stage := Complete
	percent := 100.0
	status := Complete.Status()
	if err != nil {
		stage = Failed
		if fault.KindOf(err) == fault.Cancelled {
			stage = Cancelled
		}
		percent = o.percent
		status = fault.KindOf(err).Status()
	}
	ev := Progress{ID: o.id, Version: o.version, Stage: stage, Percent: percent, Status: status, Err: err}
	o.last = ev
	o.record = rec
	o.err = err
	o.mu.Unlock()

	o.send(ev)
	close(o.events)
	close(o.done)
}

// send never blocks: when the buffer is full the oldest event is dropped.
// The pipeline goroutine is the only sender.
func (o *Operation) send(ev Progress) {
	for {
		select {
		case o.events <- ev:
			return
		default:
		}
		select {
		case <-o.events:
		default:
		}
	}
}
