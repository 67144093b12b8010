// Package profile remembers, per named profile and exchange, the node id
// the exchange assigned, so later runs say hello as the same node.
//
// Layout:
//
//	<dir>/<profile>/node.yaml
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultName is the profile used when none is given.
const DefaultName = "default"

var ErrNoRecord = errors.New("profile: no saved node")

// Record is what is kept for one profile.
type Record struct {
	NodeID       string    `yaml:"node_id"`
	HubURL       string    `yaml:"hub_url"`
	RegisteredAt time.Time `yaml:"registered_at"`
	Credits      int64     `yaml:"credits"`
	Reputation   int64     `yaml:"reputation"`
}

type Store struct {
	Directory string
}

func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gep", "profiles"), nil
}

// Open returns a Store rooted at dir, or at DefaultDirectory when dir is
// empty. Nothing is created until Save.
func Open(dir string) (*Store, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &Store{Directory: dir}, nil
}

// CheckName accepts letters, digits, '-' and '_'.
func CheckName(name string) error {
	if name == "" {
		return errors.New("profile: name cannot be empty")
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("profile: invalid character %q in name", c)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Directory, name, "node.yaml")
}

// Load returns the saved record for name. ErrNoRecord means nothing was
// saved, or it was saved for a different exchange than hubURL.
func (s *Store) Load(name, hubURL string) (Record, error) {
	if err := CheckName(name); err != nil {
		return Record{}, err
	}
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, err
	}
	var r Record
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("profile: %s: %w", name, err)
	}
	if r.NodeID == "" || (hubURL != "" && !sameHub(r.HubURL, hubURL)) {
		return Record{}, ErrNoRecord
	}
	return r, nil
}

// Save replaces the record for name. The file is written to a temporary
// name and renamed, so a crash never leaves a partial record.
func (s *Store) Save(name string, r Record) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if r.NodeID == "" {
		return errors.New("profile: refusing to save a record without node_id")
	}
	b, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".node-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// List returns the names of profiles with a saved record, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || CheckName(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(s.path(e.Name())); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func sameHub(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
