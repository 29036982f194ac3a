// Package envprofile evaluates the Lua launch profile that contributes
// environment variables to a game launch.
package envprofile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/platform"
	"github.com/allycraft/allycraft/internal/registry"
)

// FileName is the profile's name inside the base directory.
const FileName = "profile.lua"

// DefaultTimeout bounds one evaluation.
const DefaultTimeout = 2 * time.Second

// DefaultProfile is used when no profile file exists.
//
//go:embed default_profile.lua
var DefaultProfile string

var envKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ProfileError is a profile that failed to run or produced a bad env table.
type ProfileError struct {
	Message string
	Detail  string
}

func (e *ProfileError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Evaluator runs launch profiles.
type Evaluator struct {
	detector platform.Detector
	timeout  time.Duration
	log      *zap.Logger
}

// New creates an Evaluator. A nil detector leaves platform facts empty.
func New(detector platform.Detector, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{detector: detector, timeout: DefaultTimeout, log: log}
}

// EvaluateFile runs the profile at path, or DefaultProfile when path does not
// exist.
func (e *Evaluator) EvaluateFile(ctx context.Context, path string, rec registry.Record) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return e.Evaluate(ctx, DefaultProfile, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("read launch profile: %w", err)
	}
	return e.Evaluate(ctx, string(data), rec)
}

// Evaluate runs script and returns its env table.
func (e *Evaluator) Evaluate(ctx context.Context, script string, rec registry.Record) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	info := &platform.Info{}
	if e.detector != nil {
		detected, err := e.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		info = detected
	}
	if err := platform.InjectPlatformTable(L, info); err != nil {
		return nil, fmt.Errorf("inject platform table: %w", err)
	}
	injectVersionTable(L, rec)

	if err := L.DoString(script); err != nil {
		if ctx.Err() != nil {
			return nil, &ProfileError{Message: "launch profile timed out", Detail: ctx.Err().Error()}
		}
		return nil, &ProfileError{Message: "launch profile failed", Detail: err.Error()}
	}

	env, err := extractEnv(L)
	if err != nil {
		return nil, err
	}
	e.log.Debug("launch profile evaluated",
		zap.String("version", rec.Version().String()),
		zap.Int("vars", len(env)))
	return env, nil
}

// newSandboxedVM returns a VM without os, io, module loading or debug.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "require", "dofile", "loadfile", "load", "loadstring", "debug", "module", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func injectVersionTable(L *lua.LState, rec registry.Record) {
	t := L.NewTable()
	L.SetField(t, "version", lua.LString(rec.Version().String()))
	L.SetField(t, "name", lua.LString(rec.Descriptor.DisplayName()))
	L.SetField(t, "code", lua.LString(rec.Descriptor.Code))
	L.SetField(t, "beta", lua.LBool(rec.Descriptor.Beta))
	L.SetField(t, "install_path", lua.LString(rec.InstallPath))
	L.SetField(t, "data_path", lua.LString(rec.DataPath))
	L.SetGlobal("version", platform.MakeReadOnly(L, t, "version"))
}

func extractEnv(L *lua.LState) (map[string]string, error) {
	val := L.GetGlobal("env")
	switch val.Type() {
	case lua.LTNil:
		return map[string]string{}, nil
	case lua.LTTable:
	default:
		return nil, &ProfileError{Message: "env must be a table", Detail: "got " + val.Type().String()}
	}

	env := make(map[string]string)
	var bad error
	val.(*lua.LTable).ForEach(func(k, v lua.LValue) {
		if bad != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok || !envKey.MatchString(string(key)) {
			bad = &ProfileError{Message: "invalid environment variable name", Detail: k.String()}
			return
		}
		switch v.Type() {
		case lua.LTString, lua.LTNumber:
			env[string(key)] = v.String()
		case lua.LTBool:
			if lua.LVAsBool(v) {
				env[string(key)] = "1"
			} else {
				env[string(key)] = "0"
			}
		default:
			bad = &ProfileError{Message: "invalid value for " + string(key), Detail: "got " + v.Type().String()}
		}
	})
	if bad != nil {
		return nil, bad
	}
	return env, nil
}

// FileProfile evaluates the profile stored at Path for each launch.
type FileProfile struct {
	Evaluator *Evaluator
	Path      string
}

// EnvFor returns the profile environment for rec.
func (p FileProfile) EnvFor(ctx context.Context, rec registry.Record) (map[string]string, error) {
	return p.Evaluator.EvaluateFile(ctx, p.Path, rec)
}
