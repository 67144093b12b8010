// Package publisher submits Gene + Capsule + EvolutionEvent bundles to the
// exchange and keeps a local record of what was accepted.
//
// The three assets always travel together: a reusable pattern, a concrete
// realization of it, and the event that produced them. The exchange accepts
// or rejects the bundle as a whole.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"xdao.co/gep/asset"
	"xdao.co/gep/gep"
)

var (
	// ErrBundleShape reports a bundle that is not exactly Gene, Capsule,
	// EvolutionEvent in that order.
	ErrBundleShape = errors.New("publisher: bundle must be Gene, Capsule, EvolutionEvent")

	// ErrNotArchived reports a bundle the exchange accepted but the local
	// archive could not record.
	ErrNotArchived = errors.New("publisher: bundle published but not archived")
)

// Exchange sends one operation under the node session. *node.Session
// satisfies it.
type Exchange interface {
	Do(ctx context.Context, op gep.MessageType, payload map[string]any) (gep.Response, error)
}

// Recorder keeps published assets. *archive.Archive satisfies it.
type Recorder interface {
	Record(assets ...asset.Asset) error
}

// Result is a bundle as accepted by the exchange. The assets carry their
// asset_ids.
type Result struct {
	Gene     asset.Asset
	Capsule  asset.Asset
	Event    asset.Asset
	Response gep.Response
}

// IDs returns the asset_ids in bundle order.
func (r Result) IDs() []string {
	return []string{r.Gene.ID, r.Capsule.ID, r.Event.ID}
}

// Publisher publishes bundles through the node session. It is safe for
// concurrent use; sends are serialized by the Exchange.
type Publisher struct {
	ex     Exchange
	rec    Recorder
	logger *slog.Logger
}

// New returns a Publisher. rec may be nil, in which case nothing is
// recorded and bounty completions cannot be checked against it.
func New(ex Exchange, rec Recorder, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{ex: ex, rec: rec, logger: logger}
}

// Publish stamps copies of gene, capsule and event with their asset_ids and
// sends them as one publish message. The caller's values are never
// modified, whether or not the call succeeds.
func (p *Publisher) Publish(ctx context.Context, gene, capsule, event asset.Asset) (Result, error) {
	want := [3]asset.Type{asset.TypeGene, asset.TypeCapsule, asset.TypeEvolutionEvent}
	in := [3]asset.Asset{gene, capsule, event}
	var out [3]asset.Asset
	for i, a := range in {
		if a.Type != want[i] {
			return Result{}, fmt.Errorf("%w: position %d is %q, want %q", ErrBundleShape, i, a.Type, want[i])
		}
		if err := a.Validate(); err != nil {
			return Result{}, fmt.Errorf("publisher: %s: %w", a.Type, err)
		}
		s, err := a.Stamped()
		if err != nil {
			return Result{}, fmt.Errorf("publisher: %s: %w", a.Type, err)
		}
		out[i] = s
	}

	payload := map[string]any{
		"assets": []any{out[0].Fields(), out[1].Fields(), out[2].Fields()},
	}
	resp, err := p.ex.Do(ctx, gep.Publish, payload)
	if err != nil {
		p.logger.Warn("publish failed", "gene_id", out[0].ID, "err", err)
		return Result{}, err
	}

	res := Result{Gene: out[0], Capsule: out[1], Event: out[2], Response: resp}
	p.logger.Info("bundle published", "gene_id", out[0].ID, "capsule_id", out[1].ID, "event_id", out[2].ID)

	if p.rec != nil {
		if err := p.rec.Record(out[:]...); err != nil {
			p.logger.Error("archive bundle", "gene_id", out[0].ID, "err", err)
			return res, fmt.Errorf("%w: %w", ErrNotArchived, err)
		}
	}
	return res, nil
}
