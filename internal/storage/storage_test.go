package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage_Upload(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)
	if err := s.Upload(context.Background(), "recordings/u1/a.webm", "audio/webm", strings.NewReader("RIFF")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "recordings", "u1", "a.webm"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "RIFF" {
		t.Fatalf("unexpected content %q", b)
	}
}

func TestLocalStorage_KeyCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(filepath.Join(dir, "uploads"))
	if err := s.Upload(context.Background(), "../../etc/passwd", "text/plain", strings.NewReader("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "uploads", "etc", "passwd")); err != nil {
		t.Fatalf("expected key to be confined to the upload dir: %v", err)
	}
	if err := s.Upload(context.Background(), "", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	if err := NewLocalStorage(dir).Upload(ctx, "a.wav", "audio/wav", strings.NewReader("data")); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.wav")); !os.IsNotExist(err) {
		t.Fatalf("no object should be written")
	}
}

func TestOpen_FallsBackToLocal(t *testing.T) {
	s, err := Open("", "", "voice-recording", t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Fatalf("expected local storage, got %T", s)
	}
	if _, err := NewSupabaseStorage("", "", "b"); err == nil {
		t.Fatalf("expected missing configuration error")
	}
}
