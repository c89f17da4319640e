package command

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation of a FakeRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is the canned answer of a FakeRunner.
type Response struct {
	Stdout string
	Stderr string
	Err    error
}

// FakeRunner records calls and answers from canned responses keyed by the
// command line (see Call.String). Unknown commands succeed with no output.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []Call
}

// NewFakeRunner creates an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string][]Response)}
}

// On queues a response for cmdline. Queued responses are consumed in order;
// the last one repeats.
func (f *FakeRunner) On(cmdline string, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = append(f.responses[cmdline], resp)
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.calls = append(f.calls, call)

	queue := f.responses[call.String()]
	if len(queue) == 0 {
		return &Result{}, nil
	}

	resp := queue[0]
	if len(queue) > 1 {
		f.responses[call.String()] = queue[1:]
	}

	res := &Result{Stdout: resp.Stdout, Stderr: resp.Stderr}
	if resp.Err != nil {
		res.ExitCode = 1
	}
	return res, resp.Err
}

// Calls returns the recorded command lines.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// CallsIn returns the recorded calls with their working directories.
func (f *FakeRunner) CallsIn() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
