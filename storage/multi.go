package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/gep/cidutil"
)

// Named pairs a Store with the name it was configured under.
type Named struct {
	Name  string
	Store Store
}

// Multi reads from Stores in slice order and writes according to WriteAll:
// only the first store when false, every store when true. With WriteAll
// every store must return the CID derived from the body.
type Multi struct {
	Stores   []Named
	WriteAll bool
}

var _ Store = Multi{}

func (m Multi) Put(body []byte) (cid.Cid, error) {
	if len(m.Stores) == 0 {
		return cid.Undef, errors.New("storage: Multi has no stores")
	}
	if !m.WriteAll {
		return m.Stores[0].Store.Put(body)
	}
	want, err := cidutil.CIDv1RawSHA256CID(body)
	if err != nil {
		return cid.Undef, err
	}
	for _, s := range m.Stores {
		got, err := s.Store.Put(body)
		if err != nil {
			return cid.Undef, fmt.Errorf("storage: put to %q: %w", s.Name, err)
		}
		if !got.Equals(want) {
			return cid.Undef, fmt.Errorf("storage: put to %q: %w", s.Name, ErrCIDMismatch)
		}
	}
	return want, nil
}

func (m Multi) Get(id cid.Cid) ([]byte, error) {
	for _, s := range m.Stores {
		b, err := s.Store.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Multi) Has(id cid.Cid) bool {
	for _, s := range m.Stores {
		if s.Store.Has(id) {
			return true
		}
	}
	return false
}
