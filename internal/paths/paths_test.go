package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/google/go-cmp/cmp"
)

func TestSessionSocket(t *testing.T) {
	got := SessionSocket("abc")
	if filepath.Dir(got) != Runtime() {
		t.Errorf("socket dir = %q, want %q", filepath.Dir(got), Runtime())
	}
	if filepath.Base(got) != "abc.sock" {
		t.Errorf("socket name = %q, want abc.sock", filepath.Base(got))
	}
}

func TestStateLayout(t *testing.T) {
	if !strings.HasSuffix(State(), appName) {
		t.Errorf("State() = %q, want suffix %q", State(), appName)
	}
	if filepath.Dir(Sandboxes()) != State() {
		t.Errorf("Sandboxes() = %q not under %q", Sandboxes(), State())
	}
	if filepath.Base(ConfigFile()) != "config.json" {
		t.Errorf("ConfigFile() = %q", ConfigFile())
	}
}

func TestSessions(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_RUNTIME_DIR", dir)
	xdg.Reload()

	if err := os.MkdirAll(Runtime(), 0700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"s1.sock", "s2.sock", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(Runtime(), name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Sessions()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if diff := cmp.Diff([]string{"s1", "s2"}, got); diff != "" {
		t.Errorf("Sessions mismatch (-want +got):\n%s", diff)
	}
}
