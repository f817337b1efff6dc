// Package testutil provides shared test helpers for wifimgr packages.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shazow/wifimgr/wifi"
)

// Compile-time interface check.
var _ wifi.Runner = (*FakeRunner)(nil)

// FakeRunner is a wifi.Runner returning canned output keyed by the full
// command line ("nmcli -t -f WIFI general"). Commands without a canned
// response fail, so adapters under test fail closed.
type FakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errors  map[string]error
	calls   []string
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		outputs: make(map[string]string),
		errors:  make(map[string]error),
	}
}

// On registers the output for a command line.
func (f *FakeRunner) On(cmdline string, output string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[cmdline] = output
	delete(f.errors, cmdline)
	return f
}

// Fail registers an error (and optional output) for a command line.
func (f *FakeRunner) Fail(cmdline string, err error, output ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[cmdline] = err
	f.outputs[cmdline] = strings.Join(output, "")
	return f
}

// Run implements wifi.Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errors[cmdline]; ok {
		return []byte(f.outputs[cmdline]), err
	}
	if out, ok := f.outputs[cmdline]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("unexpected command %q: %w", cmdline, wifi.ErrOperationFailed)
}

// Calls returns a copy of all command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Called reports whether cmdline was run.
func (f *FakeRunner) Called(cmdline string) bool {
	for _, c := range f.Calls() {
		if c == cmdline {
			return true
		}
	}
	return false
}
