package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"xdao.co/gep/asset"
	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

// DefaultFetchLimit is used when FetchAssets is called with limit <= 0.
const DefaultFetchLimit = 10

// FetchAssets asks the exchange for up to limit assets of type t. The reply
// may be a bare list or carry the list under "assets" (top level or
// payload). Assets are returned as received; use asset.Verify to check
// their identities.
func (p *Publisher) FetchAssets(ctx context.Context, t asset.Type, limit int) ([]asset.Asset, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", asset.ErrInvalidType, t)
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	resp, err := p.ex.Do(ctx, gep.Fetch, map[string]any{
		"asset_type": string(t),
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}

	items, ok := resp.List("assets", "results")
	if !ok {
		return nil, nil
	}

	out := make([]asset.Asset, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, &transport.Error{
				Kind:     transport.KindMalformedResponse,
				Op:       gep.Fetch,
				Message:  fmt.Sprintf("asset %d is %T, not an object", i, it),
				Response: resp,
			}
		}
		a, err := fromFields(m)
		if err != nil {
			return nil, &transport.Error{Kind: transport.KindMalformedResponse, Op: gep.Fetch, Cause: err, Response: resp}
		}
		out = append(out, a)
	}
	return out, nil
}

func fromFields(m map[string]any) (asset.Asset, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return asset.Asset{}, err
	}
	var a asset.Asset
	if err := json.Unmarshal(b, &a); err != nil {
		return asset.Asset{}, err
	}
	return a, nil
}
