package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"rd-prediction-backend/internal/shared/storage/object"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestSaveOpenDelete(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	key, size, mimeType, err := store.Save(ctx, "user-1", "chest_xray.png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len(pngHeader)) {
		t.Fatalf("expected size %d, got %d", len(pngHeader), size)
	}
	if mimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", mimeType)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, pngHeader) {
		t.Fatalf("stored bytes differ")
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	if _, _, _, err := store.Save(ctx, "user-1", "../escape.png", bytes.NewReader(pngHeader)); err == nil {
		t.Fatalf("expected error for traversal file name")
	}
	if _, err := store.Open(ctx, "../../etc/passwd"); err == nil {
		t.Fatalf("expected error for traversal key")
	}
	if err := store.Delete(ctx, "/abs/path"); err == nil {
		t.Fatalf("expected error for absolute key")
	}
}
