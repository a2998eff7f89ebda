// Package filestore keeps trained models on disk as JSON snapshots,
// zstd-compressed when the path ends in .zst.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/awsl-project/billcast/internal/forecast"
	"github.com/awsl-project/billcast/internal/version"
)

// SnapshotVersion current snapshot format version
const SnapshotVersion = "1.0"

// Snapshot is the file layout of a saved model.
type Snapshot struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	AppVersion string          `json:"appVersion"`
	Model      *forecast.Model `json:"model"`
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Save writes the model to path. The file is replaced atomically.
func Save(path string, m *forecast.Model) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, path, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	return nil
}

func encode(w io.Writer, path string, m *forecast.Model) error {
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC(),
		AppVersion: version.Version,
		Model:      m,
	}
	if !compressed(path) {
		if err := sonic.ConfigStd.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("filestore: encode: %w", err)
		}
		return nil
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	if err := sonic.ConfigStd.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("filestore: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("filestore: compress: %w", err)
	}
	return nil
}

// Load reads a model saved by Save.
func Load(path string) (*forecast.Model, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return snap.Model, nil
}

// ReadSnapshot reads and validates the snapshot at path.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var snap Snapshot
	if err := sonic.ConfigStd.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("filestore: decode %s: %w", path, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("filestore: unsupported snapshot version %q", snap.Version)
	}
	if err := snap.Model.Validate(); err != nil {
		return nil, fmt.Errorf("filestore: %s: %w", path, err)
	}
	return &snap, nil
}
