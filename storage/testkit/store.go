// Package testkit holds the behavioural checks every storage.Store
// implementation is expected to pass.
package testkit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/gep/asset"
	"xdao.co/gep/cidutil"
	"xdao.co/gep/storage"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte(`{"asset_type":"Gene","name":"roundtrip"}`)

		id, err := s.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if !id.Equals(wantID) {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte(`{"name":"same"}`)

		id1, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		id, err := cidutil.CIDv1RawSHA256CID([]byte("missing"))
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if s.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := s.Get(id); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Get missing: got %v want %v", err, storage.ErrNotFound)
		}
		if _, err := s.Put([]byte("missing")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("UndefinedCID", func(t *testing.T) {
		s := newStore(t)
		if s.Has(cid.Undef) {
			t.Fatalf("Has returned true for cid.Undef")
		}
		if _, err := s.Get(cid.Undef); err == nil {
			t.Fatalf("Get(cid.Undef) succeeded")
		}
	})

	t.Run("AddressedByAssetID", func(t *testing.T) {
		s := newStore(t)
		a := asset.NovelGene("fantasy", []string{"quest"}, "three acts")
		body, err := asset.Body(a)
		if err != nil {
			t.Fatalf("Body failed: %v", err)
		}
		assetID, err := asset.ComputeID(a)
		if err != nil {
			t.Fatalf("ComputeID failed: %v", err)
		}
		want, err := asset.CID(assetID)
		if err != nil {
			t.Fatalf("CID failed: %v", err)
		}

		got, err := s.Put(body)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !got.Equals(want) {
			t.Fatalf("Put CID %s does not address asset %s", got, assetID)
		}
		if !s.Has(want) {
			t.Fatalf("Has(asset CID) returned false")
		}
	})
}
