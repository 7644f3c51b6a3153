package filestore

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

// Storage keeps every item in a single JSON object file, readable only by its owner.
type Storage struct {
	path  string
	mutex sync.RWMutex
}

var _ core.Storage = (*Storage)(nil)

func New(path string) *Storage {
	return &Storage{path: path}
}

// Path returns the backing file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) read() (map[string]string, error) {
	items := make(map[string]string)
	data, err := ioutil.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return items, nil
		}
		return nil, errors.Wrap(err, "reading state file")
	}
	if len(data) == 0 {
		return items, nil
	}
	if err = json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decoding state file")
	}
	return items, nil
}

func (s *Storage) write(items map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "creating state dir")
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding state file")
	}
	tmp := s.path + ".tmp"
	if err = ioutil.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "writing state file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replacing state file")
}

func (s *Storage) GetItem(_ context.Context, key string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	items, err := s.read()
	if err != nil {
		return "", err
	}
	if val, ok := items[key]; ok {
		return val, nil
	}
	return "", core.ErrNotFound
}

func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	items, err := s.read()
	if err != nil {
		return err
	}
	items[key] = value
	return s.write(items)
}

func (s *Storage) RemoveItem(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	items, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := items[key]; !ok {
		return nil
	}
	delete(items, key)
	return s.write(items)
}
