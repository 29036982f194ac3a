// Package launch starts installed versions and supervises them.
//
// The launcher never restarts a process. It reports exits through events and
// leaves restart policy to the caller.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/validate"
	"github.com/allycraft/allycraft/internal/version"
)

const (
	// DefaultStopGrace is how long Stop waits after SIGTERM before SIGKILL.
	DefaultStopGrace = 5 * time.Second
	// StderrTail is how much trailing stderr a crash diagnostic carries.
	StderrTail = 4 << 10

	eventBuffer = 16
)

// ErrAlreadyRunning is wrapped by LaunchError when the version is running.
var ErrAlreadyRunning = errors.New("version is already running")

// EnvProfile contributes environment variables for a launch.
type EnvProfile interface {
	EnvFor(ctx context.Context, rec registry.Record) (map[string]string, error)
}

// Config wires a Launcher.
type Config struct {
	Layout validate.Layout
	// LogDir receives <version>.log with the process output. Empty discards
	// output.
	LogDir    string
	Profile   EnvProfile
	StopGrace time.Duration
	Logger    *zap.Logger
}

// Launcher spawns game processes.
type Launcher struct {
	layout  validate.Layout
	logDir  string
	profile EnvProfile
	grace   time.Duration
	log     *zap.Logger

	events chan Event

	mu      sync.Mutex
	running map[version.Version]*Handle
}

// New creates a Launcher.
func New(cfg Config) *Launcher {
	if cfg.Layout.Executable == "" {
		cfg.Layout = validate.DefaultLayout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Launcher{
		layout:  cfg.Layout,
		logDir:  cfg.LogDir,
		profile: cfg.Profile,
		grace:   cfg.StopGrace,
		log:     cfg.Logger,
		events:  make(chan Event, eventBuffer),
		running: make(map[version.Version]*Handle),
	}
}

// Events delivers lifecycle events of every process this launcher started.
// A slow consumer loses the oldest events.
func (l *Launcher) Events() <-chan Event {
	return l.events
}

// Running reports whether v has a live process.
func (l *Launcher) Running(v version.Version) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.running[v]
	return ok
}

// Handle returns the live process of v.
func (l *Launcher) Handle(v version.Version) (*Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.running[v]
	return h, ok
}

// Launch starts rec's executable with its install directory as working
// directory. env holds caller variables such as display and session settings;
// the profile and the ALLYCRAFT_* variables are applied over it.
func (l *Launcher) Launch(ctx context.Context, rec registry.Record, env map[string]string) (*Handle, error) {
	v := rec.Version()
	fail := func(err error) error {
		return fault.New(fault.LaunchError, "launch", v.String(), err)
	}

	if rec.InstallPath == "" || v.IsZero() {
		return nil, fail(errors.New("no installation record"))
	}
	exe := l.layout.ExecutablePath(rec.InstallPath)
	info, err := os.Stat(exe)
	if err != nil {
		return nil, fail(fmt.Errorf("launcher binary: %w", err))
	}
	if info.IsDir() || info.Mode().Perm()&0o100 == 0 {
		return nil, fail(fmt.Errorf("launcher binary %s is not executable", exe))
	}

	var profileEnv map[string]string
	if l.profile != nil {
		profileEnv, err = l.profile.EnvFor(ctx, rec)
		if err != nil {
			return nil, fail(err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.running[v]; ok {
		return nil, fail(ErrAlreadyRunning)
	}

	out, err := l.openLog(v)
	if err != nil {
		return nil, fail(err)
	}
	tail := newTailBuffer(StderrTail)

	cmd := exec.Command(exe)
	cmd.Dir = rec.InstallPath
	cmd.Env = mergeEnv(os.Environ(), env, profileEnv, map[string]string{
		EnvDataDir: rec.DataPath,
		EnvVersion: v.String(),
	})
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(out, tail)
	// own process group so Stop reaches helpers the game spawns
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// children that inherit stderr must not hold up exit reporting
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fail(fmt.Errorf("start process: %w", err))
	}

	h := &Handle{
		version: v,
		cmd:     cmd,
		grace:   l.grace,
		done:    make(chan struct{}),
	}
	l.running[v] = h
	l.log.Info("game launched",
		zap.String("version", v.String()),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("path", rec.InstallPath))
	l.emit(Event{Kind: Launched, Version: v, PID: cmd.Process.Pid, Time: time.Now()})

	go l.supervise(h, out, tail)
	return h, nil
}

func (l *Launcher) openLog(v version.Version) (io.WriteCloser, error) {
	if l.logDir == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.logDir, v.String()+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open launch log: %w", err)
	}
	fmt.Fprintf(f, "=== %s launched %s ===\n", v, time.Now().UTC().Format(time.RFC3339))
	return f, nil
}

// supervise waits for the process and reports how it ended.
func (l *Launcher) supervise(h *Handle, out io.WriteCloser, tail *tailBuffer) {
	waitErr := h.cmd.Wait()
	out.Close()

	ev := Event{
		Version:  h.version,
		PID:      h.cmd.Process.Pid,
		ExitCode: h.cmd.ProcessState.ExitCode(),
		Time:     time.Now(),
	}
	// exit status decides the outcome; Wait may still fail on output copying
	state := h.cmd.ProcessState
	switch {
	case h.stopRequested():
		ev.Kind = Stopped
	case state != nil && state.Success():
		ev.Kind = Exited
	default:
		ev.Kind = Crashed
		ev.Diagnostic = diagnostic(h.cmd.ProcessState, waitErr, tail.String())
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		l.log.Debug("child processes still held game output after exit",
			zap.String("version", h.version.String()))
	} else if waitErr != nil && ev.Kind == Exited {
		l.log.Debug("launch output copy failed",
			zap.String("version", h.version.String()),
			zap.Error(waitErr))
	}

	l.mu.Lock()
	if l.running[h.version] == h {
		delete(l.running, h.version)
	}
	l.mu.Unlock()

	if ev.Kind == Crashed {
		l.log.Warn("game crashed",
			zap.String("version", h.version.String()),
			zap.Int("exit_code", ev.ExitCode),
			zap.String("diagnostic", ev.Diagnostic))
	} else {
		l.log.Info("game exited",
			zap.String("version", h.version.String()),
			zap.Stringer("kind", ev.Kind))
	}

	h.finish(ev)
	l.emit(ev)
}

func diagnostic(state *os.ProcessState, waitErr error, stderr string) string {
	status := waitErr.Error()
	if state != nil {
		status = state.String()
	}
	if stderr == "" {
		return status
	}
	return status + "\n" + stderr
}

// emit never blocks; when the buffer is full the oldest event is dropped.
func (l *Launcher) emit(ev Event) {
	for {
		select {
		case l.events <- ev:
			return
		default:
		}
		select {
		case <-l.events:
		default:
		}
	}
}

// Handle is a launched process.
type Handle struct {
	version version.Version
	cmd     *exec.Cmd
	grace   time.Duration
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
	result  Event
}

// Version returns the launched version.
func (h *Handle) Version() version.Version { return h.version }

// PID returns the process id.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Done is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Event, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Result returns the exit event; it is only meaningful after Done.
func (h *Handle) Result() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Stop terminates the process group with SIGTERM and escalates to SIGKILL
// after the grace period. It returns once the process is gone or ctx ends.
func (h *Handle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	pgid := -h.cmd.Process.Pid
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process: %w", err)
	}

	timer := time.NewTimer(h.grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("kill process: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) stopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *Handle) finish(ev Event) {
	h.mu.Lock()
	h.result = ev
	h.mu.Unlock()
	close(h.done)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
