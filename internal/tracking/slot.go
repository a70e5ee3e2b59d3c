package tracking

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Slot is the durable driver-id cache the background reporter reads on
// every invocation. It lives outside the live process so reporting survives
// the process being killed and relaunched. Written at login / tracking
// start, cleared at logout; an empty slot turns a pending callback into a
// silent no-op so a stale callback can never write to a previous driver's
// record.
type Slot interface {
	Store(driverID uint) error
	Load() (uint, bool, error)
	Clear() error
}

// FileSlot keeps the driver id in a small file under a state directory.
type FileSlot struct {
	path string
}

func NewFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileSlot{path: filepath.Join(dir, "driver_uid")}, nil
}

func (s *FileSlot) Store(driverID uint) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(uint64(driverID), 10)), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileSlot) Load() (uint, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil || id == 0 {
		return 0, false, nil
	}
	return uint(id), true, nil
}

func (s *FileSlot) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
