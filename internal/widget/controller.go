package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/upload"
)

var (
	ErrSuperseded       = errors.New("intake superseded by a newer one")
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrIndexOutOfRange  = errors.New("image index out of range")
)

// Handlers are the caller's hooks. All are optional and are invoked without
// the controller's lock held.
type Handlers struct {
	// OnChange receives the new list and the written positions. Removals
	// report nil positions.
	OnChange func(list []*intake.ImageRecord, changed []int)
	// OnError receives rejections and read failures with the attempted batch,
	// and upload failures with a nil batch.
	OnError    func(err error, batch []*intake.ImageRecord)
	OnUpload   func()
	OnProgress func(upload.Progress)
	OnSuccess  func(*upload.Response)
}

type State struct {
	Dragging      bool
	PendingUpdate intake.PendingUpdate
	Uploading     bool
	// Errors holds the last rejection report, nil after a successful intake.
	Errors *intake.ValidationResult
}

// Controller holds the transient state of one uploader: drag flag, armed
// update target, upload flag and last error. The list itself belongs to the
// caller; the controller mirrors the last list it reported or was given.
type Controller struct {
	opts        Options
	handlers    Handlers
	coordinator *intake.Coordinator
	dispatcher  *upload.Dispatcher
	ids         intake.IdentityGenerator
	logger      *slog.Logger
	generation  intake.Generation

	mu        sync.Mutex
	images    []*intake.ImageRecord
	pending   intake.PendingUpdate
	dragging  bool
	uploading bool
	errors    *intake.ValidationResult
}

type Option func(*Controller)

func WithCoordinator(c *intake.Coordinator) Option {
	return func(ctrl *Controller) {
		ctrl.coordinator = c
	}
}

func WithDispatcher(d *upload.Dispatcher) Option {
	return func(ctrl *Controller) {
		ctrl.dispatcher = d
	}
}

func WithIdentityGenerator(ids intake.IdentityGenerator) Option {
	return func(ctrl *Controller) {
		ctrl.ids = ids
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(ctrl *Controller) {
		ctrl.logger = logger
	}
}

func NewController(opts Options, handlers Handlers, options ...Option) *Controller {
	c := &Controller{
		opts:     opts.withDefaults(),
		handlers: handlers,
		ids:      intake.UUIDGenerator{},
		logger:   slog.Default(),
	}
	for _, o := range options {
		o(c)
	}
	if c.coordinator == nil {
		c.coordinator = intake.NewCoordinator(
			intake.NewMaterializer(intake.WithMaterializerLogger(c.logger)),
			intake.WithIdentityGenerator(c.ids),
			intake.WithCoordinatorLogger(c.logger),
		)
	}
	if c.dispatcher == nil {
		c.dispatcher = upload.NewDispatcher(upload.WithLogger(c.logger))
	}
	return c
}

// SetImages replaces the mirrored list with the caller's. Entries without an
// identity receive one.
func (c *Controller) SetImages(list []*intake.ImageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Next()
	c.images = intake.EnsureIdentities(list, c.ids)
}

func (c *Controller) Images() []*intake.ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.images)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Dragging:      c.dragging,
		PendingUpdate: c.pending,
		Uploading:     c.uploading,
		Errors:        c.errors,
	}
}

// AcceptString is the accept attribute for the file picker.
func (c *Controller) AcceptString() string {
	return intake.AcceptString(c.opts.AcceptType)
}

// AllowsMultipleSelection reports whether the picker may return several
// files; an armed update target always takes a single file.
func (c *Controller) AllowsMultipleSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Multiple && !c.pending.IsSet()
}

// BeginUpload prepares a plain add: any armed update target is dropped.
func (c *Controller) BeginUpload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = intake.NoPendingUpdate()
}

// StartUpdate arms index as the target of the next intake only.
func (c *Controller) StartUpdate(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.images) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	c.pending = intake.UpdateAt(index)
	return nil
}

func (c *Controller) DragEnter(items int) {
	if items <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = true
}

func (c *Controller) DragLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = false
}

// Drop ends a drag and takes in the dropped files.
func (c *Controller) Drop(ctx context.Context, handles []intake.FileHandle) error {
	c.DragLeave()
	if len(handles) == 0 {
		return nil
	}
	return c.HandleFiles(ctx, handles)
}

// HandleFiles runs an intake of handles against the mirrored list. The armed
// update target is consumed whatever the outcome. When the list changes
// (a newer intake, a removal or SetImages) before this intake finishes, the
// result is dropped and ErrSuperseded returned.
func (c *Controller) HandleFiles(ctx context.Context, handles []intake.FileHandle) error {
	if len(handles) == 0 {
		return nil
	}

	c.mu.Lock()
	tag := c.generation.Next()
	current := c.images
	pending := c.pending
	c.pending = intake.NoPendingUpdate()
	c.mu.Unlock()

	result, err := c.coordinator.Intake(ctx, intake.Request{
		Handles:       handles,
		Current:       current,
		Config:        c.opts.validationConfig(pending),
		AllowMultiple: c.opts.Multiple,
		DataURLKey:    c.opts.DataURLKey,
	})

	c.mu.Lock()
	if !c.generation.IsCurrent(tag) {
		c.mu.Unlock()
		c.logger.Debug("Controller: dropping stale intake result", "generation", tag)
		return ErrSuperseded
	}
	if err != nil {
		var rejection *intake.RejectionError
		var batch []*intake.ImageRecord
		if errors.As(err, &rejection) {
			report := rejection.Result
			c.errors = &report
			batch = rejection.Batch
		}
		c.mu.Unlock()
		if c.handlers.OnError != nil {
			c.handlers.OnError(err, batch)
		}
		return err
	}
	c.errors = nil
	c.images = result.List
	c.mu.Unlock()

	if c.handlers.OnChange != nil {
		c.handlers.OnChange(slices.Clone(result.List), result.Changed)
	}
	if c.opts.AutoPending {
		if _, err := c.Upload(ctx); err != nil {
			c.logger.Warn("Controller: automatic upload not started", "error", err)
		}
	}
	return nil
}

// Remove drops the entries at the given positions of the current list.
func (c *Controller) Remove(indexes ...int) error {
	c.mu.Lock()
	drop := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(c.images) {
			c.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		drop[i] = true
	}
	list := make([]*intake.ImageRecord, 0, len(c.images))
	for i, r := range c.images {
		if !drop[i] {
			list = append(list, r)
		}
	}
	c.images = list
	c.generation.Next()
	c.mu.Unlock()

	if c.handlers.OnChange != nil {
		c.handlers.OnChange(slices.Clone(list), nil)
	}
	return nil
}

func (c *Controller) RemoveAll() {
	c.mu.Lock()
	c.images = []*intake.ImageRecord{}
	c.generation.Next()
	c.mu.Unlock()

	if c.handlers.OnChange != nil {
		c.handlers.OnChange([]*intake.ImageRecord{}, nil)
	}
}

// Upload sends the raw files of the current list to the configured URL. It
// returns a channel closed once the terminal handler ran.
func (c *Controller) Upload(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	if len(c.images) == 0 {
		c.mu.Unlock()
		return nil, upload.ErrNoFiles
	}
	c.uploading = true
	handles := intake.Handles(c.images)
	c.mu.Unlock()

	if c.handlers.OnUpload != nil {
		c.handlers.OnUpload()
	}

	done := c.dispatcher.Dispatch(ctx, upload.Request{
		Handles:     handles,
		Destination: c.opts.UploadURL,
		Headers:     c.opts.Headers,
		FieldName:   c.opts.FieldName,
	}, upload.Callbacks{
		OnProgress: c.handlers.OnProgress,
		OnSuccess: func(resp *upload.Response) {
			c.finishUpload()
			if c.handlers.OnSuccess != nil {
				c.handlers.OnSuccess(resp)
			}
		},
		OnError: func(err error) {
			c.finishUpload()
			if c.handlers.OnError != nil {
				c.handlers.OnError(err, nil)
			}
		},
	})
	return done, nil
}

func (c *Controller) finishUpload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading = false
}
