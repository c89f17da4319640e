package command

import (
	"context"
	"errors"
	"runtime"
	"testing"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" || !LookPath("sh") {
		t.Skip("requires sh")
	}

	r := NewExecRunner("CI_TOOLS_TEST_VALUE=hello")
	dir := t.TempDir()

	res, err := r.Run(context.Background(), dir, "sh", "-c", "echo $CI_TOOLS_TEST_VALUE; pwd")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := res.Lines()
	if len(lines) != 2 || lines[0] != "hello" {
		t.Errorf("Lines() = %v", lines)
	}

	res, err = r.Run(context.Background(), dir, "sh", "-c", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !rperrors.IsKind(err, rperrors.KindIO) {
		t.Errorf("kind = %v, want io", rperrors.GetKind(err))
	}
}

func TestResultCombined(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Stdout: "out"}, "out"},
		{Result{Stderr: "err"}, "err"},
		{Result{Stdout: "out", Stderr: "err"}, "out\nerr"},
	}
	for _, tt := range tests {
		if got := tt.res.Combined(); got != tt.want {
			t.Errorf("Combined() = %q, want %q", got, tt.want)
		}
	}
}

func TestFakeRunner(t *testing.T) {
	boom := errors.New("boom")
	f := NewFakeRunner().
		On("npm view demo versions --json", Response{Stdout: `["1.0.0"]`}).
		On("npm publish", Response{Err: boom}).
		On("npm publish", Response{Stdout: "+ demo@1.0.0"})

	res, err := f.Run(context.Background(), "/w", "npm", "view", "demo", "versions", "--json")
	if err != nil || res.Stdout != `["1.0.0"]` {
		t.Fatalf("unexpected response %+v %v", res, err)
	}

	if _, err := f.Run(context.Background(), "/w", "npm", "publish"); !errors.Is(err, boom) {
		t.Fatalf("first publish error = %v", err)
	}
	res, err = f.Run(context.Background(), "/w", "npm", "publish")
	if err != nil || res.Stdout != "+ demo@1.0.0" {
		t.Fatalf("second publish = %+v %v", res, err)
	}
	res, _ = f.Run(context.Background(), "/w", "npm", "publish")
	if res.Stdout != "+ demo@1.0.0" {
		t.Error("last response should repeat")
	}

	if got := len(f.Calls()); got != 4 {
		t.Errorf("Calls() = %d", got)
	}
	if f.CallsIn()[0].Dir != "/w" {
		t.Error("dir not recorded")
	}
}
