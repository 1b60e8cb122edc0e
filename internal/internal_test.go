package internal

import (
	"log/slog"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		quiet bool
		debug bool
		want  slog.Level
	}{
		{"default", false, false, slog.LevelInfo},
		{"quiet", true, false, slog.LevelWarn},
		{"debug", false, true, slog.LevelDebug},
		{"debug wins over quiet", true, true, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prevQuiet, prevDebug := IsQuiet(), IsDebug()
			t.Cleanup(func() {
				SetQuiet(prevQuiet)
				SetDebug(prevDebug)
			})

			SetQuiet(tt.quiet)
			SetDebug(tt.debug)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionStringLocal(t *testing.T) {
	prev := version
	t.Cleanup(func() { version = prev })

	version = ""
	if got := VersionString(); got != defaultLocalBuild {
		t.Errorf("VersionString() = %q, want %q", got, defaultLocalBuild)
	}
}

func TestVersionStringPipeline(t *testing.T) {
	prevVersion, prevStage, prevCommit := version, stage, gitCommit
	t.Cleanup(func() {
		version, stage, gitCommit = prevVersion, prevStage, prevCommit
	})

	version, stage, gitCommit = "v1.2.3", "main", "abc123"
	want := "1.2.3 abc123 [" + Arch() + "]"
	if got := VersionString(); got != want {
		t.Errorf("VersionString() = %q, want %q", got, want)
	}

	stage = "Staging"
	want = "1.2.3+staging abc123 [" + Arch() + "]"
	if got := VersionString(); got != want {
		t.Errorf("VersionString() = %q, want %q", got, want)
	}
}

func TestBuild(t *testing.T) {
	info := Build()
	if info.Name != Name {
		t.Errorf("Name = %q, want %q", info.Name, Name)
	}
	if info.Arch != Arch() {
		t.Errorf("Arch = %q, want %q", info.Arch, Arch())
	}
	if info.Local != IsLocal() {
		t.Errorf("Local = %v, want %v", info.Local, IsLocal())
	}
}
