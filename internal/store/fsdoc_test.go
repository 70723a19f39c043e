package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFSDocumentsRoundtrip(t *testing.T) {
	ctx := context.Background()
	docs, err := NewFSDocuments(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSDocuments: %v", err)
	}

	if err := docs.Write(ctx, "notes/chapter1.md", []byte("draft")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := docs.Read(ctx, "notes/chapter1.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "draft" {
		t.Errorf("Read = %q, want draft", data)
	}
}

func TestFSDocumentsRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	docs, _ := NewFSDocuments(t.TempDir())

	for _, rel := range []string{"../outside.md", "notes/../../outside.md", "/etc/passwd", "."} {
		if err := docs.Write(ctx, rel, []byte("x")); !errors.Is(err, ErrBadState) {
			t.Errorf("Write(%q) = %v, want ErrBadState", rel, err)
		}
		if _, err := docs.Read(ctx, rel); !errors.Is(err, ErrBadState) {
			t.Errorf("Read(%q) = %v, want ErrBadState", rel, err)
		}
	}
}

func TestFSDocumentsRemove(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	docs, _ := NewFSDocuments(root)

	if err := docs.Remove(ctx, "missing.md"); err != nil {
		t.Fatalf("Remove on missing file = %v", err)
	}

	if err := docs.Write(ctx, "note.md", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := docs.Remove(ctx, "note.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "note.md")); !os.IsNotExist(err) {
		t.Error("file still present after remove")
	}
}

func TestFSDocumentsRenameCreatesParent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	docs, _ := NewFSDocuments(root)

	if err := docs.Write(ctx, "note.md", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := docs.Rename(ctx, "note.md", "archive/2024/note.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "archive", "2024", "note.md")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "note.md")); !os.IsNotExist(err) {
		t.Error("old path still present after rename")
	}
}
