// Package storage keeps the canonical bodies of published assets, keyed by
// CID.
//
// An asset body is the canonical encoding its asset_id is computed over, so
// a body's CID (raw + sha2-256) carries the asset_id as its digest. Stores
// never trust a caller-supplied key: the CID is always derived from the
// bytes.
package storage

import "github.com/ipfs/go-cid"

// Store is a content-addressed store of asset bodies.
//
// Contract:
// - Put MUST be idempotent.
// - Stored bodies MUST be immutable.
// - CIDs MUST be derived from the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type Store interface {
	Put(body []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
