package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for evidence uploads.
var (
	ErrInvalidPayload   = errors.New("invalid evidence payload")
	ErrTooLarge         = errors.New("evidence too large")
	ErrInvalidSessionID = errors.New("session id is not usable as a directory name")
	ErrNotFound         = errors.New("evidence not found")
)

var sessionDirPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// FileStore writes alert proof images under one directory per session.
type FileStore struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

// NewFileStore creates a FileStore rooted at dir. maxBytes caps the decoded image size.
func NewFileStore(dir string, maxBytes int64) *FileStore {
	return &FileStore{root: dir, maxBytes: maxBytes, now: time.Now}
}

// Save decodes a base64 image (optionally wrapped as a data URL) and writes it
// to <root>/<sessionID>/<epoch-ms>_<random>.jpg. It returns the path relative
// to the store root, e.g. "/sess-1/1717171717171_k3j9x0ab.jpg".
func (s *FileStore) Save(ctx context.Context, sessionID, payload string) (string, error) {
	if !validSessionDir(sessionID) {
		return "", ErrInvalidSessionID
	}

	data, err := s.decode(payload)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}

	// O_EXCL guarantees an existing file is never overwritten; a clash just
	// draws a new suffix.
	for attempt := 0; attempt < 3; attempt++ {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		filename := fmt.Sprintf("%d_%s.jpg", s.now().UnixMilli(), suffix)

		f, err := os.OpenFile(filepath.Join(dir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create evidence file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("write evidence file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("close evidence file: %w", err)
		}

		return path.Join("/", sessionID, filename), nil
	}

	return "", errors.New("could not allocate a unique evidence filename")
}

// Resolve maps a relative evidence path back to a file on disk, refusing
// anything that escapes the store root.
func (s *FileStore) Resolve(rel string) (string, error) {
	cleaned := path.Clean("/" + rel)
	parts := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
	if len(parts) != 2 || !validSessionDir(parts[0]) || parts[1] == "" {
		return "", ErrNotFound
	}

	full := filepath.Join(s.root, parts[0], parts[1])
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return full, nil
}

func (s *FileStore) decode(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrInvalidPayload
	}

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, ErrInvalidPayload
		}
		header := payload[len("data:"):comma]
		if !strings.HasPrefix(header, "image/") || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: unsupported data URL %q", ErrInvalidPayload, header)
		}
		payload = payload[comma+1:]
	}

	if s.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxBytes+3 {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, s.maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidPayload
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxBytes)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: content is %s", ErrInvalidPayload, ct)
	}

	return data, nil
}

func validSessionDir(id string) bool {
	return id != "." && id != ".." && sessionDirPattern.MatchString(id)
}
