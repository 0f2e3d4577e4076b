package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3HashIsStable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("courier"), 0o600))

	a, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	b, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLockedConfigVerifies(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "service:\n  name: locked\n")

	manifest, err := GenerateChecksums(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), ChecksumFilename), manifest)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Verified)
}

func TestTamperedConfigFailsVerification(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "service:\n  name: locked\n")
	_, err := GenerateChecksums(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0o600))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestManifestMissingEntry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x: 1\n"), 0o600))
	_, err := GenerateChecksums(other)
	require.NoError(t, err)

	path := filepath.Join(dir, DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte("sessions: []\n"), 0o600))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestGenerateChecksumsRejectsMixedDirectories(t *testing.T) {
	t.Parallel()
	a := writeConfig(t, "a: 1\n")
	b := writeConfig(t, "b: 1\n")

	_, err := GenerateChecksums(a, b)
	require.Error(t, err)

	_, err = GenerateChecksums()
	require.Error(t, err)
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFilename), []byte("version: 2\nhashes: {}\n"), 0o600))

	_, err := LoadChecksums(dir)
	require.ErrorContains(t, err, "unsupported checksums version")
}
