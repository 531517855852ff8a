// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// ============================================================================
// ATOMIC WRITE TESTS
// ============================================================================

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile overwrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

// ============================================================================
// TEXT TESTS
// ============================================================================

func TestFoldCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"JEE Advanced", "jee advanced"},
		{"L'Hôpital", "l'hôpital"},
		{"already lower", "already lower"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FoldCase(tt.in); got != tt.want {
			t.Errorf("FoldCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("lim(x→0)"); got != 8 {
		t.Errorf("RuneLen = %d, want 8", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		max      int
		expected string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"tiny_max", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"multibyte", "日本語のテキスト", 5, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.expected)
			}
		})
	}
}

func TestTruncateRunesNoEllipsis(t *testing.T) {
	if got := TruncateRunesNoEllipsis("abcdef", 4); got != "abcd" {
		t.Errorf("got %q, want abcd", got)
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	// Each CJK character is two columns wide.
	if got := TruncateWidth("日本語日本語", 7); got != "日本..." {
		t.Errorf("TruncateWidth CJK = %q, want %q", got, "日本...")
	}
	if got := TruncateWidth("anything", 0); got != "" {
		t.Errorf("zero width = %q", got)
	}
}

func TestCleanSpeechText(t *testing.T) {
	in := "## Solution\n\n**Step 1**: use x\n- first\n\nDone"
	want := "Solution. Step 1: use x . first. Done"
	if got := CleanSpeechText(in); got != want {
		t.Errorf("CleanSpeechText = %q, want %q", got, want)
	}
}
