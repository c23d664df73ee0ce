package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileBox handles the on-disk record format shared by the identity and
// signature stores: one JSON file per record, optionally sealed with
// secretbox.
type fileBox struct {
	dir       string
	encrypted bool
	key       [keySize]byte
}

func newFileBox(dir string, encrypted bool) (*fileBox, error) {
	fb := &fileBox{dir: dir, encrypted: encrypted}

	if encrypted {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fb.key = key
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	return fb, nil
}

func (fb *fileBox) path(name string) string {
	ext := ".json"
	if fb.encrypted {
		ext = ".enc"
	}
	return filepath.Join(fb.dir, name+ext)
}

func (fb *fileBox) write(name string, data []byte) error {
	var err error
	if fb.encrypted {
		data, err = seal(data, &fb.key)
		if err != nil {
			return fmt.Errorf("failed to encrypt record: %w", err)
		}
	}
	return os.WriteFile(fb.path(name), data, 0600)
}

func (fb *fileBox) read(name string) ([]byte, error) {
	data, err := os.ReadFile(fb.path(name))
	if err != nil {
		return nil, err
	}
	if fb.encrypted {
		data, err = open(data, &fb.key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt record: %w", err)
		}
	}
	return data, nil
}

func (fb *fileBox) remove(name string) error {
	return os.Remove(fb.path(name))
}

func (fb *fileBox) exists(name string) bool {
	_, err := os.Stat(fb.path(name))
	return err == nil
}

func (fb *fileBox) list() ([]string, error) {
	entries, err := os.ReadDir(fb.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			names = append(names, strings.TrimSuffix(name, ".json"))
		} else if strings.HasSuffix(name, ".enc") {
			names = append(names, strings.TrimSuffix(name, ".enc"))
		}
	}
	return names, nil
}
