package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{90 * time.Second, "1:30"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.n); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveDirectory(dir)
	if err != nil || !filepath.IsAbs(got) {
		t.Errorf("ResolveDirectory(dir) = %q, %v", got, err)
	}
	if _, err := ResolveDirectory(file); err == nil {
		t.Error("ResolveDirectory(file) succeeded, want error")
	}
	if _, err := ResolveDirectory(filepath.Join(dir, "missing")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("ResolveDirectory(missing) error = %v", err)
	}
}

func TestPrompts(t *testing.T) {
	var out bytes.Buffer
	if got := PromptForDirectory(strings.NewReader("/photos\n"), &out); got != "/photos" {
		t.Errorf("PromptForDirectory() = %q, want /photos", got)
	}
	cwd, _ := os.Getwd()
	if got := PromptForDirectory(strings.NewReader("\n"), &out); got != cwd {
		t.Errorf("PromptForDirectory(empty) = %q, want %q", got, cwd)
	}

	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "": false} {
		if got := Confirm(strings.NewReader(input), &out, "Delete?"); got != want {
			t.Errorf("Confirm(%q) = %v, want %v", input, got, want)
		}
	}
}
