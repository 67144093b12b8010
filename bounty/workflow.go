package bounty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

// DefaultFetchLimit is used when FetchTasks is called with limit <= 0.
const DefaultFetchLimit = 20

// Exchange sends one operation under the node session. *node.Session
// satisfies it.
type Exchange interface {
	Do(ctx context.Context, op gep.MessageType, payload map[string]any) (gep.Response, error)
}

// Ledger answers whether an asset was published by this node.
// *archive.Archive satisfies it.
type Ledger interface {
	Published(assetID string) bool
}

// Workflow is safe for concurrent use. Network calls are serialized by the
// Exchange; the local view is guarded separately so Tasks never waits on
// the network.
type Workflow struct {
	ex     Exchange
	ledger Ledger
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	// gone holds tasks the exchange reported as claimed elsewhere.
	gone map[string]struct{}
	// claiming holds tasks with a claim in flight.
	claiming map[string]struct{}
}

// New returns a Workflow sending through ex. Completions are checked
// against ledger; a nil ledger refuses every completion.
func New(ex Exchange, ledger Ledger, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		ex:       ex,
		ledger:   ledger,
		logger:   logger,
		tasks:    make(map[string]*Task),
		gone:     make(map[string]struct{}),
		claiming: make(map[string]struct{}),
	}
}

// FetchTasks replaces the local view with the exchange's current snapshot
// of up to limit tasks and returns the Available ones. Tasks this node has
// claimed keep their local state even when the snapshot omits them; Tasks
// returns the whole view.
func (w *Workflow) FetchTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	resp, err := w.ex.Do(ctx, gep.Fetch, map[string]any{
		"include_tasks": true,
		"limit":         limit,
	})
	if err != nil {
		return nil, err
	}
	fetched, err := parseTasks(resp)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	next := make(map[string]*Task, len(fetched))
	order := make([]string, 0, len(fetched))
	for i := range fetched {
		t := fetched[i]
		if _, refused := w.gone[t.ID]; refused {
			continue
		}
		if prev, ok := w.tasks[t.ID]; ok && prev.State != Available {
			t.State = prev.State
			t.AssetID = prev.AssetID
		}
		if _, dup := next[t.ID]; dup {
			continue
		}
		if len(order) == limit {
			break
		}
		next[t.ID] = &t
		order = append(order, t.ID)
	}
	for id, prev := range w.tasks {
		if _, ok := next[id]; !ok && prev.State == Claimed {
			next[id] = prev
			order = append(order, id)
		}
	}
	w.tasks = next
	w.order = order
	view := w.snapshotLocked()
	w.mu.Unlock()

	out := make([]Task, 0, len(view))
	for _, t := range view {
		if t.State == Available {
			out = append(out, t)
		}
	}
	w.logger.Debug("tasks fetched", "count", len(fetched), "available", len(out), "view", len(view))
	return out, nil
}

// Claim asks the exchange for taskID, which must be Available in the local
// view. Nothing is sent otherwise.
func (w *Workflow) Claim(ctx context.Context, taskID string) error {
	w.mu.Lock()
	if _, ok := w.gone[taskID]; ok {
		w.mu.Unlock()
		return &transport.Error{
			Kind:    transport.KindRemoteRejected,
			Op:      gep.TaskClaim,
			Message: fmt.Sprintf("task %s was claimed by another node", taskID),
			Cause:   ErrTaskUnavailable,
		}
	}
	t, ok := w.tasks[taskID]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if _, busy := w.claiming[taskID]; busy || t.State != Available {
		st := t.State.String()
		if busy {
			st = "claim in flight"
		}
		w.mu.Unlock()
		return fmt.Errorf("%w: claim %s while %s", ErrSequence, taskID, st)
	}
	w.claiming[taskID] = struct{}{}
	w.mu.Unlock()

	_, err := w.ex.Do(ctx, gep.TaskClaim, map[string]any{"task_id": taskID})

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claiming, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskUnavailable) {
			w.dropLocked(taskID)
			w.gone[taskID] = struct{}{}
			w.logger.Info("task unavailable", "task_id", taskID)
		}
		return err
	}
	if t, ok := w.tasks[taskID]; ok {
		t.State = Claimed
	}
	w.logger.Info("task claimed", "task_id", taskID)
	return nil
}

// Complete reports taskID done with assetID. The task must be Claimed by
// this node and assetID must be recorded as published; otherwise nothing
// is sent.
func (w *Workflow) Complete(ctx context.Context, taskID, assetID string) error {
	w.mu.Lock()
	t, ok := w.tasks[taskID]
	if !ok || t.State != Claimed {
		st := "unknown"
		if ok {
			st = t.State.String()
		}
		w.mu.Unlock()
		return fmt.Errorf("%w: complete %s while %s", ErrSequence, taskID, st)
	}
	w.mu.Unlock()

	if w.ledger == nil || !w.ledger.Published(assetID) {
		return fmt.Errorf("%w: %s", ErrUnpublishedAsset, assetID)
	}

	if _, err := w.ex.Do(ctx, gep.TaskComplete, map[string]any{
		"task_id":  taskID,
		"asset_id": assetID,
	}); err != nil {
		return err
	}

	w.mu.Lock()
	if t, ok := w.tasks[taskID]; ok {
		t.State = Completed
		t.AssetID = assetID
	}
	w.mu.Unlock()
	w.logger.Info("task completed", "task_id", taskID, "asset_id", assetID)
	return nil
}

// Release gives up a claimed task locally. The exchange is not told.
func (w *Workflow) Release(taskID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if t.State != Claimed {
		return fmt.Errorf("%w: release %s while %s", ErrSequence, taskID, t.State)
	}
	t.State = Released
	return nil
}

// Tasks returns a copy of the local view in snapshot order.
func (w *Workflow) Tasks() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Task returns one task from the local view.
func (w *Workflow) Task(taskID string) (Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

func (w *Workflow) snapshotLocked() []Task {
	out := make([]Task, 0, len(w.order))
	for _, id := range w.order {
		if t, ok := w.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

func (w *Workflow) dropLocked(taskID string) {
	delete(w.tasks, taskID)
	for i, id := range w.order {
		if id == taskID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}
