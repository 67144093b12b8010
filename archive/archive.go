// Package archive records the assets a node has published.
//
// Each asset's canonical body is kept in a storage.Store under the CID that
// carries its asset_id, so "has this asset been published by us" is a
// content lookup rather than a separate ledger. The bounty workflow uses
// Published to refuse completions that reference unknown assets.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"xdao.co/gep/asset"
	"xdao.co/gep/storage"
)

// Archive is safe for concurrent use.
type Archive struct {
	store  storage.Store
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]asset.Type
}

// New returns an Archive over store. Assets already present in store are
// reported by Published and Get but are not listed by IDs until recorded
// or imported in this process.
func New(store storage.Store, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, logger: logger, index: make(map[string]asset.Type)}
}

// Record stores the canonical body of each asset. Every asset must carry
// the asset_id of its own content.
func (a *Archive) Record(assets ...asset.Asset) error {
	for _, as := range assets {
		if err := asset.Verify(as); err != nil {
			return fmt.Errorf("archive: %s %q: %w", as.Type, as.Name, err)
		}
		body, err := asset.Body(as)
		if err != nil {
			return fmt.Errorf("archive: %s %q: %w", as.Type, as.Name, err)
		}
		if err := a.put(as.ID, body); err != nil {
			return err
		}
		a.mu.Lock()
		a.index[as.ID] = as.Type
		a.mu.Unlock()
		a.logger.Debug("asset archived", "asset_id", as.ID, "asset_type", string(as.Type))
	}
	return nil
}

func (a *Archive) put(id string, body []byte) error {
	want, err := asset.CID(id)
	if err != nil {
		return err
	}
	got, err := a.store.Put(body)
	if err != nil {
		return fmt.Errorf("archive: store %s: %w", id, err)
	}
	if !got.Equals(want) {
		return fmt.Errorf("archive: store %s: %w", id, storage.ErrCIDMismatch)
	}
	return nil
}

// Published reports whether the asset with the given asset_id is archived.
func (a *Archive) Published(assetID string) bool {
	a.mu.RLock()
	_, ok := a.index[assetID]
	a.mu.RUnlock()
	if ok {
		return true
	}
	id, err := asset.CID(assetID)
	if err != nil {
		return false
	}
	return a.store.Has(id)
}

// Get loads an archived asset. The returned asset carries its asset_id.
func (a *Archive) Get(assetID string) (asset.Asset, error) {
	id, err := asset.CID(assetID)
	if err != nil {
		return asset.Asset{}, err
	}
	body, err := a.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return asset.Asset{}, fmt.Errorf("archive: asset %s: %w", assetID, err)
		}
		return asset.Asset{}, err
	}
	return asset.ParseBody(body)
}

// IDs lists the asset_ids recorded in this process, sorted.
func (a *Archive) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.index))
	for id := range a.index {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
