package capture

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"relogin", ModeRelogin},
		{" RELOGIN ", ModeRelogin},
		{"create", ModeCreate},
		{"", ModeCreate},
		{"bogus", ModeCreate},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"3", 3, false},
		{" 12 ", 12, false},
		{"-1", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseIndex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIndex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestArgs(t *testing.T) {
	if got := Args(ModeCreate, 0); !reflect.DeepEqual(got, []string{"capture", "create"}) {
		t.Errorf("Args(create) = %v", got)
	}
	if got := Args(ModeRelogin, 3); !reflect.DeepEqual(got, []string{"capture", "relogin", "3"}) {
		t.Errorf("Args(relogin) = %v", got)
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		hint        string
		wantEnglish bool
	}{
		{"en", true},
		{"en-US", true},
		{"zh", false},
		{"zh-CN", false},
		{"", false},
		{"???", false},
	}
	for _, tt := range tests {
		if got := newMessages(tt.hint).english; got != tt.wantEnglish {
			t.Errorf("newMessages(%q).english = %v, want %v", tt.hint, got, tt.wantEnglish)
		}
	}
}

func TestResolveBrowserPath(t *testing.T) {
	root := t.TempDir()
	bundled := filepath.Join(root, "chromium-linux", "chrome")

	// Nothing exists: the bundled path is reported.
	got, err := resolveBrowserPath("", root, "linux")
	if err != nil || got != bundled {
		t.Errorf("resolveBrowserPath() = %q, %v; want %q", got, err, bundled)
	}

	if err := os.MkdirAll(filepath.Dir(bundled), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bundled, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	// Override that does not exist falls back to the bundled binary.
	got, _ = resolveBrowserPath(filepath.Join(root, "missing"), root, "linux")
	if got != bundled {
		t.Errorf("missing override: got %q, want %q", got, bundled)
	}

	override := filepath.Join(root, "custom-chrome")
	if err := os.WriteFile(override, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	got, _ = resolveBrowserPath(override, root, "linux")
	if got != override {
		t.Errorf("existing override: got %q, want %q", got, override)
	}

	if _, err := resolveBrowserPath("", root, "plan9"); err == nil {
		t.Error("expected unsupported platform error")
	}
	if got, _ := resolveBrowserPath("", root, "windows"); got != filepath.Join(root, "chromium", "chrome.exe") {
		t.Errorf("windows path = %q", got)
	}
}
