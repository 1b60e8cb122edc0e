package runtime

import (
	"context"
	"testing"

	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/google/go-cmp/cmp"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override existing key in place",
			base:      []string{"A=1", "B=2"},
			overrides: []string{"A=override"},
			want:      []string{"A=override", "B=2"},
		},
		{
			name:      "add new key at the end",
			base:      []string{"B=1"},
			overrides: []string{"A=2"},
			want:      []string{"B=1", "A=2"},
		},
		{
			name:      "empty base",
			base:      nil,
			overrides: []string{"A=1"},
			want:      []string{"A=1"},
		},
		{
			name:      "empty overrides",
			base:      []string{"A=1"},
			overrides: nil,
			want:      []string{"A=1"},
		},
		{
			name:      "both empty",
			base:      nil,
			overrides: nil,
			want:      []string{},
		},
		{
			name:      "value with equals sign",
			base:      []string{"CMD=foo=bar"},
			overrides: nil,
			want:      []string{"CMD=foo=bar"},
		},
		{
			name:      "malformed entries skipped",
			base:      []string{"NOEQUALS", "A=1"},
			overrides: []string{"ALSO_BAD", "B=2"},
			want:      []string{"A=1", "B=2"},
		},
		{
			name:      "last override wins",
			base:      []string{"PATH=/bin"},
			overrides: []string{"PATH=/usr/bin", "PATH=/opt/bin"},
			want:      []string{"PATH=/opt/bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnv(tt.base, tt.overrides)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mergeEnv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextExecID(t *testing.T) {
	a := nextExecID()
	b := nextExecID()
	if a == b {
		t.Fatalf("nextExecID returned duplicate: %q", a)
	}
	if a == "" || b == "" {
		t.Fatal("nextExecID returned empty string")
	}
}

func TestProcessUnredirectedStreamsAreNil(t *testing.T) {
	p := &Process{exited: make(chan struct{})}

	if p.Stdin() != nil {
		t.Error("Stdin() != nil for unredirected stdin")
	}
	if p.Stdout() != nil {
		t.Error("Stdout() != nil for unredirected stdout")
	}
	if p.Stderr() != nil {
		t.Error("Stderr() != nil for unredirected stderr")
	}
}

func TestProcessExitCodeWhileRunning(t *testing.T) {
	p := &Process{exited: make(chan struct{})}

	code, err := p.ExitCode()
	if err != host.ErrProcessRunning {
		t.Fatalf("ExitCode() error = %v, want %v", err, host.ErrProcessRunning)
	}
	if code != -1 {
		t.Errorf("ExitCode() = %d, want -1", code)
	}
}

func TestProcessExitCodeAfterExit(t *testing.T) {
	p := &Process{exited: make(chan struct{}), code: 3}
	close(p.exited)

	code, err := p.ExitCode()
	if err != nil {
		t.Fatalf("ExitCode() error = %v", err)
	}
	if code != 3 {
		t.Errorf("ExitCode() = %d, want 3", code)
	}
}

func TestProcessExitCodeWithStatusError(t *testing.T) {
	p := &Process{exited: make(chan struct{}), err: context.Canceled}
	close(p.exited)

	if _, err := p.ExitCode(); err == nil {
		t.Fatal("ExitCode() returned nil error for failed status")
	}
}
