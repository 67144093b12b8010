package config

import (
	"errors"
	"fmt"
	"time"

	"xdao.co/gep/storage"
	"xdao.co/gep/storage/grpccas"
	"xdao.co/gep/storage/localfs"
	"xdao.co/gep/storage/memory"
)

// Archive write policies.
//
// WriteFirst writes only to the first backend; reads fall back in order.
// WriteAll writes to every backend and requires the same CID from each.
const (
	WriteFirst = "first"
	WriteAll   = "all"
)

// Archive backend types.
const (
	BackendLocalFS = "localfs"
	BackendMemory  = "memory"
	BackendGRPC    = "grpc"
)

type ArchiveConfig struct {
	WritePolicy string          `yaml:"write_policy"`
	Backends    []BackendConfig `yaml:"backends"`
}

type BackendConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Dir is the localfs root.
	Dir string `yaml:"dir,omitempty"`

	// Target is the grpc dial target; Timeout bounds each RPC.
	Target      string        `yaml:"target,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxMsgBytes int           `yaml:"max_msg_bytes,omitempty"`
}

func (c ArchiveConfig) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("config: archive needs at least one backend")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		id := b.Name
		if id == "" {
			id = b.Type
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("config: duplicate archive backend %q", id)
		}
		seen[id] = struct{}{}
		switch b.Type {
		case BackendMemory:
		case BackendLocalFS:
			if b.Dir == "" {
				return fmt.Errorf("config: archive backend %q: dir is required", id)
			}
		case BackendGRPC:
			if b.Target == "" {
				return fmt.Errorf("config: archive backend %q: target is required", id)
			}
		default:
			return fmt.Errorf("config: archive backend %q: unknown type %q", id, b.Type)
		}
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("config: invalid archive write_policy %q", c.WritePolicy)
	}
}

// Open opens every backend and combines them per WritePolicy. The returned
// func closes whatever the backends hold open.
//
// If preferred is non-empty the backend with that name is moved first, and
// so receives writes under WriteFirst.
func (c ArchiveConfig) Open(preferred string) (storage.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("config: preferred archive backend %q not configured", preferred)
		}
		b := ordered[idx]
		copy(ordered[1:idx+1], ordered[:idx])
		ordered[0] = b
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	named := make([]storage.Named, 0, len(ordered))
	for _, b := range ordered {
		s, closeFn, err := b.open()
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("config: open archive backend %q: %w", b.Name, err)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		name := b.Name
		if name == "" {
			name = b.Type
		}
		named = append(named, storage.Named{Name: name, Store: s})
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	return storage.Multi{Stores: named, WriteAll: c.WritePolicy == WriteAll}, closeAll, nil
}

func (b BackendConfig) open() (storage.Store, func() error, error) {
	switch b.Type {
	case BackendMemory:
		return memory.New(), nil, nil
	case BackendLocalFS:
		s, err := localfs.New(b.Dir)
		return s, nil, err
	case BackendGRPC:
		c, err := grpccas.Dial(b.Target, grpccas.DialOptions{Timeout: b.Timeout, MaxMsgBytes: b.MaxMsgBytes})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown type %q", b.Type)
	}
}
