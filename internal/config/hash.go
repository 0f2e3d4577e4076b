package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFilename is the manifest written next to the config by
// `courier config lock`.
const ChecksumFilename = ".checksums"

// ErrChecksumMismatch means the config changed since it was locked.
var ErrChecksumMismatch = errors.New("config checksum mismatch")

// ChecksumManifest records the BLAKE3 hash of each locked file by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash returns the hex BLAKE3-256 digest of the file at path.
func ComputeBlake3Hash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// GenerateChecksums hashes the given config files and writes the manifest
// into the directory of the first one. It returns the manifest path.
func GenerateChecksums(files ...string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("no files to lock")
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string, len(files)),
	}
	dir := filepath.Dir(files[0])
	for _, f := range files {
		if filepath.Dir(f) != dir {
			return "", fmt.Errorf("%s is not in %s", f, dir)
		}
		sum, err := ComputeBlake3Hash(f)
		if err != nil {
			return "", err
		}
		manifest.Hashes[filepath.Base(f)] = sum
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal checksums: %w", err)
	}
	path := filepath.Join(dir, ChecksumFilename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write checksums: %w", err)
	}
	return path, nil
}

// LoadChecksums reads the manifest from dir. It returns os.ErrNotExist,
// wrapped, when there is none.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFilename))
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}

	var m ChecksumManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}
	if m.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", m.Version)
	}
	return &m, nil
}

// verifyChecksum checks path against the manifest in its directory. A
// missing manifest is not an error; it reports false.
func verifyChecksum(path string) (bool, error) {
	m, err := LoadChecksums(filepath.Dir(path))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	name := filepath.Base(path)
	want, ok := m.Hashes[name]
	if !ok {
		return false, fmt.Errorf("%w: %s is not in %s (run 'courier config lock')", ErrChecksumMismatch, name, ChecksumFilename)
	}
	got, err := ComputeBlake3Hash(path)
	if err != nil {
		return false, err
	}
	if got != want {
		return false, fmt.Errorf("%w: %s (expected %s, got %s); if the edit was intended run 'courier config lock'",
			ErrChecksumMismatch, name, want, got)
	}
	return true, nil
}
