// Package memory is a process-local Store, used when no archive directory
// is configured and in tests.
package memory

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/gep/cidutil"
	"xdao.co/gep/storage"
)

type Store struct {
	mu     sync.RWMutex
	bodies map[string][]byte
}

func New() *Store {
	return &Store{bodies: make(map[string][]byte)}
}

func (s *Store) Put(body []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(body)
	if err != nil {
		return cid.Undef, err
	}
	key := id.KeyString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.bodies[key]; ok {
		if !bytes.Equal(existing, body) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	s.bodies[key] = append([]byte(nil), body...)
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	s.mu.RLock()
	b, ok := s.bodies[id.KeyString()]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bodies[id.KeyString()]
	return ok
}
