package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when the database would live on a network
// mount, where SQLite file locking is unreliable.
var ErrNetworkFilesystem = errors.New("sqlite database on network filesystem")

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// CheckLocalFilesystem rejects a database path on a network filesystem.
// Platforms where the filesystem type cannot be detected pass.
func CheckLocalFilesystem(path string) error {
	return checkFilesystem(path, filesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	existing, err := nearestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if errors.Is(err, errors.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if _, ok := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; ok {
		return fmt.Errorf("%w: %q is on %s, set state.path to a local disk", ErrNetworkFilesystem, path, fsType)
	}
	return nil
}

// nearestExisting walks up from path to the first ancestor that exists.
func nearestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		p = parent
	}
}
