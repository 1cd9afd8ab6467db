package intake

import (
	"context"
	"fmt"
	"log/slog"
)

// Request describes one intake. Current is never modified.
type Request struct {
	Handles []FileHandle
	Current []*ImageRecord
	Config  ValidationConfig
	// AllowMultiple appends the batch; otherwise the first file replaces the
	// whole list. Ignored when a pending update is set.
	AllowMultiple bool
	DataURLKey    string
}

type Result struct {
	List []*ImageRecord
	// Changed holds the positions in List that were written, ascending.
	Changed []int
	// Batch is the materialized batch in input order.
	Batch []*ImageRecord
}

// Coordinator runs materialization, validation and merge for a batch.
type Coordinator struct {
	materializer *Materializer
	ids          IdentityGenerator
	logger       *slog.Logger
}

type CoordinatorOption func(*Coordinator)

func WithIdentityGenerator(ids IdentityGenerator) CoordinatorOption {
	return func(c *Coordinator) {
		c.ids = ids
	}
}

func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(materializer *Materializer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		materializer: materializer,
		ids:          UUIDGenerator{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.materializer == nil {
		c.materializer = NewMaterializer(WithMaterializerLogger(c.logger))
	}
	return c
}

// Intake returns the new list and the written positions, or an error:
// *ReadError when a file could not be read, *RejectionError when a rule
// failed. On error the caller's list stays as it was.
func (c *Coordinator) Intake(ctx context.Context, req Request) (*Result, error) {
	if len(req.Handles) == 0 {
		return nil, ErrEmptyBatch
	}
	if target, ok := req.Config.PendingUpdate.Index(); ok && (target < 0 || target >= len(req.Current)) {
		return nil, fmt.Errorf("%w: index %d, list length %d", ErrInvalidUpdateTarget, target, len(req.Current))
	}

	batch, err := c.materializer.MaterializeAll(ctx, req.Handles)
	if err != nil {
		c.logger.Error("Coordinator: materialization failed", "files", len(req.Handles), "error", err)
		return nil, err
	}

	key := req.DataURLKey
	if key == "" {
		key = DefaultDataURLKey
	}
	for i, r := range batch {
		batch[i] = r.withDataURLKey(key)
	}

	validation := Validate(batch, req.Current, req.Config)
	if !validation.Accepted() {
		c.logger.Warn("Coordinator: batch rejected", "files", len(batch), "reasons", validation.Summary())
		return nil, &RejectionError{Result: validation, Batch: batch}
	}

	list, changed := merge(batch, req.Current, req.Config.PendingUpdate, req.AllowMultiple)
	list = EnsureIdentities(list, c.ids)
	for _, i := range changed {
		c.logger.Debug("Coordinator: record placed", "index", i, "id", list[i].ID, "filename", list[i].Name())
	}
	for i, pos := range changedBatchPositions(changed, req.Config.PendingUpdate, req.AllowMultiple) {
		batch[pos] = list[changed[i]]
	}

	c.logger.Info("Coordinator: batch accepted",
		"files", len(batch),
		"list_length", len(list),
		"changed", changed)
	return &Result{List: list, Changed: changed, Batch: batch}, nil
}

func merge(batch, current []*ImageRecord, pending PendingUpdate, allowMultiple bool) ([]*ImageRecord, []int) {
	if target, ok := pending.Index(); ok {
		list := make([]*ImageRecord, len(current))
		copy(list, current)
		list[target] = batch[0]
		return list, []int{target}
	}

	if allowMultiple {
		list := make([]*ImageRecord, 0, len(current)+len(batch))
		list = append(list, current...)
		list = append(list, batch...)
		changed := make([]int, 0, len(batch))
		for i := len(current); i < len(list); i++ {
			changed = append(changed, i)
		}
		return list, changed
	}

	return []*ImageRecord{batch[0]}, []int{0}
}

// changedBatchPositions maps each changed list position back to the batch
// entry it came from so the returned batch carries assigned identities.
func changedBatchPositions(changed []int, pending PendingUpdate, allowMultiple bool) []int {
	if pending.IsSet() || !allowMultiple {
		return []int{0}
	}
	positions := make([]int, len(changed))
	for i := range changed {
		positions[i] = i
	}
	return positions
}
