package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01}

func newTestStore(t *testing.T, maxBytes int64) *FileStore {
	t.Helper()
	s := NewFileStore(t.TempDir(), maxBytes)
	s.now = func() time.Time { return time.UnixMilli(1717171717171) }
	return s
}

func TestSaveDataURL(t *testing.T) {
	s := newTestStore(t, 1<<20)
	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)

	rel, err := s.Save(context.Background(), "sess-1", payload)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !regexp.MustCompile(`^/sess-1/1717171717171_[a-z0-9]{8}\.jpg$`).MatchString(rel) {
		t.Fatalf("unexpected path %q", rel)
	}

	onDisk, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(onDisk, jpegBytes) {
		t.Fatalf("stored bytes differ")
	}
}

func TestSaveBareBase64(t *testing.T) {
	s := newTestStore(t, 1<<20)
	if _, err := s.Save(context.Background(), "sess-2", base64.StdEncoding.EncodeToString(jpegBytes)); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestSaveUniqueNamesWithinSameMillisecond(t *testing.T) {
	s := newTestStore(t, 1<<20)
	payload := base64.StdEncoding.EncodeToString(jpegBytes)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		rel, err := s.Save(context.Background(), "sess-3", payload)
		if err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
		if seen[rel] {
			t.Fatalf("duplicate path %q", rel)
		}
		seen[rel] = true
	}

	entries, err := os.ReadDir(filepath.Join(s.root, "sess-3"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 files, got %d", len(entries))
	}
}

func TestSaveRejects(t *testing.T) {
	s := newTestStore(t, 64)
	big := append(append([]byte{}, jpegBytes...), bytes.Repeat([]byte{0x01}, 200)...)

	tests := []struct {
		name      string
		sessionID string
		payload   string
		want      error
	}{
		{"empty payload", "sess", "", ErrInvalidPayload},
		{"not base64", "sess", "data:image/jpeg;base64,@@@@", ErrInvalidPayload},
		{"non-image data url", "sess", "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hi")), ErrInvalidPayload},
		{"non-image bytes", "sess", base64.StdEncoding.EncodeToString([]byte("plain text, not an image")), ErrInvalidPayload},
		{"too large", "sess", base64.StdEncoding.EncodeToString(big), ErrTooLarge},
		{"path traversal", "../etc", base64.StdEncoding.EncodeToString(jpegBytes), ErrInvalidSessionID},
		{"slash in id", "a/b", base64.StdEncoding.EncodeToString(jpegBytes), ErrInvalidSessionID},
		{"dot dot", "..", base64.StdEncoding.EncodeToString(jpegBytes), ErrInvalidSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(context.Background(), tt.sessionID, tt.payload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	entries, _ := os.ReadDir(s.root)
	if len(entries) != 0 {
		t.Fatalf("rejected payloads must not create files, found %d entries", len(entries))
	}
}

func TestResolve(t *testing.T) {
	s := newTestStore(t, 1<<20)
	rel, err := s.Save(context.Background(), "sess-4", base64.StdEncoding.EncodeToString(jpegBytes))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	full, err := s.Resolve(rel)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", rel, err)
	}
	if !strings.HasPrefix(full, s.root) {
		t.Fatalf("resolved path %q escapes root %q", full, s.root)
	}

	for _, bad := range []string{"../../etc/passwd", "/sess-4", "/sess-4/missing.jpg", "/", "sess-4/../../x.jpg"} {
		if _, err := s.Resolve(bad); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) = %v, want ErrNotFound", bad, err)
		}
	}
}
