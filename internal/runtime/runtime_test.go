package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// A well-formed chain ID.
var testParent = digest.FromString("layer").String()

func TestDefaultPlatform(t *testing.T) {
	p := defaultPlatform()
	if !strings.HasPrefix(p, "linux/") {
		t.Fatalf("defaultPlatform = %q, want linux/<arch>", p)
	}
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[1] == "" {
		t.Fatalf("defaultPlatform = %q, want linux/<arch>", p)
	}
}

func TestShimFor(t *testing.T) {
	if got := shimFor(false); got != ociRuntime {
		t.Errorf("shimFor(false) = %q, want %q", got, ociRuntime)
	}
	if got := shimFor(true); got != vmRuntime {
		t.Errorf("shimFor(true) = %q, want %q", got, vmRuntime)
	}
}

func TestGraphDir(t *testing.T) {
	rt := &Runtime{stateDir: "/state"}

	got := rt.graphDir("abc123")
	if want := filepath.Join("/state", "images", "abc123"); got != want {
		t.Fatalf("graphDir = %q, want %q", got, want)
	}
}

func TestSandboxRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sandboxRecord{Key: "cruxrun-sandbox-s1", Snapshotter: "overlayfs", Parent: "sha256:top"}

	if err := writeSandboxRecord(dir, want); err != nil {
		t.Fatal(err)
	}
	got, err := readSandboxRecord(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSandboxRecordIncomplete(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, sandboxRecordFile), []byte(`{"key":""}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readSandboxRecord(dir); err == nil {
		t.Fatal("expected error for incomplete record")
	}
}

func TestCreateSandboxRequiresLayers(t *testing.T) {
	rt := &Runtime{snapshotter: DefaultSnapshotter}

	err := rt.CreateSandbox(context.Background(), t.TempDir(), nil)
	if !errors.Is(err, ErrNoLayers) {
		t.Fatalf("error = %v, want %v", err, ErrNoLayers)
	}
}

func TestCreateSandboxRejectsExisting(t *testing.T) {
	rt := &Runtime{snapshotter: DefaultSnapshotter}
	dir := t.TempDir()
	if err := writeSandboxRecord(dir, sandboxRecord{Key: "k", Snapshotter: "s"}); err != nil {
		t.Fatal(err)
	}

	err := rt.CreateSandbox(context.Background(), dir, []host.Layer{{ID: "s1", Path: testParent}})
	if !errors.Is(err, ErrSandboxExists) {
		t.Fatalf("error = %v, want %v", err, ErrSandboxExists)
	}
}

func TestCreateSandboxKeepsUnreadableRecord(t *testing.T) {
	rt := &Runtime{snapshotter: DefaultSnapshotter}
	dir := t.TempDir()
	record := filepath.Join(dir, sandboxRecordFile)
	if err := os.WriteFile(record, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}

	err := rt.CreateSandbox(context.Background(), dir, []host.Layer{{ID: "s1", Path: testParent}})
	if !errors.Is(err, ErrSandboxExists) {
		t.Fatalf("error = %v, want %v", err, ErrSandboxExists)
	}
	if _, err := os.Stat(record); err != nil {
		t.Fatalf("existing record removed: %v", err)
	}
}

func TestCreateSandboxRejectsInvalidParent(t *testing.T) {
	rt := &Runtime{snapshotter: DefaultSnapshotter}

	err := rt.CreateSandbox(context.Background(), t.TempDir(), []host.Layer{{ID: "s1", Path: "not-a-digest"}})
	if !errors.Is(err, ErrSandbox) {
		t.Fatalf("error = %v, want %v", err, ErrSandbox)
	}
}

func TestDestroySandboxWithoutRecord(t *testing.T) {
	rt := &Runtime{}
	dir := filepath.Join(t.TempDir(), "sandbox")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}

	rt.DestroySandbox(context.Background(), dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("sandbox directory still present: %v", err)
	}

	// Destroying again is harmless.
	rt.DestroySandbox(context.Background(), dir)
}

func TestPlatformMatcher(t *testing.T) {
	rt := &Runtime{platform: "linux/arm64"}
	match, err := rt.platformMatcher()
	if err != nil {
		t.Fatal(err)
	}
	if !match.Match(ocispec.Platform{OS: "linux", Architecture: "arm64"}) {
		t.Error("matcher rejects its own platform")
	}
	if match.Match(ocispec.Platform{OS: "linux", Architecture: "amd64"}) {
		t.Error("matcher accepts a different architecture")
	}
}

func TestLoadImageRejectsInvalidPlatform(t *testing.T) {
	rt := &Runtime{platform: "linux/arm64/v8/extra"}

	// The platform is checked before the image store is consulted.
	if _, err := rt.loadImage(context.Background(), "alpine"); !errors.Is(err, ErrRuntime) {
		t.Fatalf("error = %v, want %v", err, ErrRuntime)
	}
	if _, err := rt.resolveImage(context.Background(), "alpine"); !errors.Is(err, ErrRuntime) {
		t.Fatalf("error = %v, want %v", err, ErrRuntime)
	}
}

func TestCPUSpecOpts(t *testing.T) {
	tests := []struct {
		name      string
		cpus      float64
		wantQuota int64 // Zero means no CPU limit is set.
	}{
		{"unlimited", 0, 0},
		{"negative", -1, 0},
		{"fraction", 0.5, 50000},
		{"several", 2, 200000},
		{"below minimum", 0.001, minCFSQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &specs.Spec{Linux: &specs.Linux{}}
			for _, opt := range cpuSpecOpts(tt.cpus) {
				if err := opt(context.Background(), nil, nil, s); err != nil {
					t.Fatal(err)
				}
			}

			res := s.Linux.Resources
			if tt.wantQuota == 0 {
				if res != nil && res.CPU != nil && res.CPU.Quota != nil {
					t.Fatalf("quota = %d, want none", *res.CPU.Quota)
				}
				return
			}
			if res == nil || res.CPU == nil || res.CPU.Quota == nil || res.CPU.Period == nil {
				t.Fatal("CPU limit not set")
			}
			if *res.CPU.Quota != tt.wantQuota || *res.CPU.Period != cfsPeriod {
				t.Fatalf("quota/period = %d/%d, want %d/%d", *res.CPU.Quota, *res.CPU.Period, tt.wantQuota, cfsPeriod)
			}
		})
	}
}
