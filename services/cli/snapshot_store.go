package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"tenxcards/services/review"
)

// FileSnapshotStore persists the review round as zstd-compressed JSON on
// disk, optionally encrypted with an age identity.
type FileSnapshotStore struct {
	path     string
	identity *age.X25519Identity
}

// NewFileSnapshotStore builds a store at path. A non-empty ageIdentity turns
// on encryption at rest.
func NewFileSnapshotStore(path, ageIdentity string) (*FileSnapshotStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("snapshot path is required")
	}

	store := &FileSnapshotStore{path: path}
	if strings.TrimSpace(ageIdentity) != "" {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(ageIdentity))
		if err != nil {
			return nil, fmt.Errorf("parse age identity: %w", err)
		}
		store.identity = identity
	}
	return store, nil
}

func (s *FileSnapshotStore) Load(ctx context.Context) (*review.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reader io.Reader = bytes.NewReader(raw)
	if s.identity != nil {
		decrypted, err := age.Decrypt(reader, s.identity)
		if err != nil {
			return nil, fmt.Errorf("decrypt snapshot: %w", err)
		}
		reader = decrypted
	}

	decoder, err := zstd.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	var snap review.Snapshot
	if err := json.NewDecoder(decoder).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap *review.Snapshot) error {
	var buf bytes.Buffer

	var sink io.Writer = &buf
	var encryptCloser io.WriteCloser
	if s.identity != nil {
		var err error
		encryptCloser, err = age.Encrypt(&buf, s.identity.Recipient())
		if err != nil {
			return fmt.Errorf("encrypt snapshot: %w", err)
		}
		sink = encryptCloser
	}

	encoder, err := zstd.NewWriter(sink)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := json.NewEncoder(encoder).Encode(snap); err != nil {
		encoder.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	if encryptCloser != nil {
		if err := encryptCloser.Close(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, buf.Bytes(), 0o600)
}

func (s *FileSnapshotStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
