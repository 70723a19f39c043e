package model

import "testing"

func TestIsBinaryPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"note.md", false},
		{"Draft.MD", false},
		{"notes/chapter.txt", false},
		{"meta.vnode.json", false},
		{"settings.json", false},
		{"cover.png", true},
		{"audio/track.mp3", true},
		{"archive.md.zip", true},
		{"README", true},
	}

	for _, tt := range tests {
		if got := IsBinaryPath(tt.path); got != tt.want {
			t.Errorf("IsBinaryPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestConflictCopyName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"note.md", "note_conflict_20240101_120000.md"},
		{"notes/chapter.md", "notes/chapter_conflict_20240101_120000.md"},
		{"meta.vnode.json", "meta.vnode_conflict_20240101_120000.json"},
		{"Makefile", "Makefile_conflict_20240101_120000"},
	}

	for _, tt := range tests {
		if got := ConflictCopyName(tt.path, "20240101_120000"); got != tt.want {
			t.Errorf("ConflictCopyName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
