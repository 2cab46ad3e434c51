package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// PinStore keeps the pinned conversation ids of one device. Pins never
// leave the device.
type PinStore interface {
	Load() (map[string]bool, error)
	Save(pins map[string]bool) error
}

// FilePinStore persists pins as a msgpack file per device id.
type FilePinStore struct {
	path string
}

func NewFilePinStore(dir, deviceID string) *FilePinStore {
	return &FilePinStore{path: filepath.Join(dir, "pins-"+deviceID+".msgpack")}
}

// Load returns an empty set when nothing was saved yet.
func (s *FilePinStore) Load() (map[string]bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pins: %w", err)
	}
	var ids []string
	if err := msgpack.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode pins: %w", err)
	}
	pins := make(map[string]bool, len(ids))
	for _, id := range ids {
		pins[id] = true
	}
	return pins, nil
}

func (s *FilePinStore) Save(pins map[string]bool) error {
	ids := make([]string, 0, len(pins))
	for id, pinned := range pins {
		if pinned {
			ids = append(ids, id)
		}
	}
	raw, err := msgpack.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode pins: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create pin dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write pins: %w", err)
	}
	return os.Rename(tmp, s.path)
}
