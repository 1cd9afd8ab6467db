package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/jo-hoe/imageintake/internal/backend/database"
	"github.com/jo-hoe/imageintake/internal/cache"
	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/thumbnail"
)

// CoreService keeps the stored upload list and applies the configured
// intake rules to everything that is added to it.
type CoreService struct {
	// mu serializes changes to the stored list so each intake sees the list
	// it is persisted against.
	mu sync.Mutex

	config          *ServiceConfig
	databaseService database.DatabaseService
	cache           cache.Cache
	materializer    *intake.Materializer
	coordinator     *intake.Coordinator
	logger          *slog.Logger
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}
	materializedCache, err := cache.NewCache(config.Cache.toCacheConfig())
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	slog.Info("cache initialized successfully", "type", config.Cache.Type)

	return newCoreService(config, databaseService, materializedCache, slog.Default()), nil
}

func newCoreService(config *ServiceConfig, databaseService database.DatabaseService, c cache.Cache, logger *slog.Logger) *CoreService {
	materializer := intake.NewMaterializer(
		intake.WithCache(c),
		intake.WithMaterializerLogger(logger),
	)
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		cache:           c,
		materializer:    materializer,
		coordinator:     intake.NewCoordinator(materializer, intake.WithCoordinatorLogger(logger)),
		logger:          logger,
	}
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// StoreUploads runs an intake of handles against the stored list and persists
// the outcome. Without multiple mode the stored list is replaced by the first
// file.
func (service *CoreService) StoreUploads(ctx context.Context, handles []intake.FileHandle) ([]*database.Upload, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	stored, err := service.databaseService.GetUploads()
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	result, err := service.coordinator.Intake(ctx, intake.Request{
		Handles:       handles,
		Current:       toRecords(stored),
		Config:        service.config.Uploader.ValidationConfig(),
		AllowMultiple: service.config.Uploader.AllowMultiple(),
		DataURLKey:    service.config.Uploader.DataURLKey,
	})
	if err != nil {
		return nil, err
	}

	uploads := make([]*database.Upload, 0, len(result.Changed))
	for _, i := range result.Changed {
		upload, err := toUpload(result.List[i])
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}

	persist := service.databaseService.CreateUploads
	if dropped := droppedIDs(stored, result.List); len(dropped) > 0 {
		// the list was replaced; only the changed entries remain
		persist = service.databaseService.ReplaceAll
		service.logger.Debug("CoreService: replacing stored list", "dropped", len(dropped))
	}
	if _, err := persist(uploads); err != nil {
		return nil, fmt.Errorf("failed to store uploads: %w", err)
	}

	service.logger.Info("CoreService: uploads stored", "count", len(uploads), "list_length", len(result.List))
	return uploads, nil
}

// ReplaceUpload swaps the content of the upload with the given id for the
// file behind handle. The upload keeps its id and position.
func (service *CoreService) ReplaceUpload(ctx context.Context, id string, handle intake.FileHandle) (*database.Upload, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	stored, err := service.databaseService.GetUploads()
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	index := slices.IndexFunc(stored, func(u *database.Upload) bool { return u.ID == id })
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}

	cfg := service.config.Uploader.ValidationConfig()
	cfg.PendingUpdate = intake.UpdateAt(index)
	result, err := service.coordinator.Intake(ctx, intake.Request{
		Handles:    []intake.FileHandle{handle},
		Current:    toRecords(stored),
		Config:     cfg,
		DataURLKey: service.config.Uploader.DataURLKey,
	})
	if err != nil {
		return nil, err
	}

	upload, err := toUpload(result.List[index])
	if err != nil {
		return nil, err
	}
	upload.ID = id
	if err := service.databaseService.ReplaceUpload(id, upload); err != nil {
		return nil, err
	}
	service.logger.Info("CoreService: upload replaced", "id", id, "index", index)
	return upload, nil
}

// ValidateBatch checks handles against the configured rules for a list that
// currently holds currentCount entries, without storing anything. A nil
// updateIndex validates a plain add.
func (service *CoreService) ValidateBatch(ctx context.Context, handles []intake.FileHandle, currentCount int, updateIndex *int) (intake.ValidationResult, error) {
	if len(handles) == 0 {
		return intake.ValidationResult{}, intake.ErrEmptyBatch
	}
	if currentCount < 0 {
		return intake.ValidationResult{}, fmt.Errorf("invalid current count: %d", currentCount)
	}
	cfg := service.config.Uploader.ValidationConfig()
	if updateIndex != nil {
		if *updateIndex < 0 || *updateIndex >= currentCount {
			return intake.ValidationResult{}, fmt.Errorf("%w: index %d, list length %d",
				intake.ErrInvalidUpdateTarget, *updateIndex, currentCount)
		}
		cfg.PendingUpdate = intake.UpdateAt(*updateIndex)
	}

	batch, err := service.materializer.MaterializeAll(ctx, handles)
	if err != nil {
		return intake.ValidationResult{}, err
	}
	current := make([]*intake.ImageRecord, currentCount)
	for i := range current {
		current[i] = &intake.ImageRecord{}
	}
	return intake.Validate(batch, current, cfg), nil
}

func (service *CoreService) ListUploads() ([]*database.Upload, error) {
	return service.databaseService.GetUploads()
}

func (service *CoreService) GetUpload(id string) (*database.Upload, error) {
	return service.databaseService.GetUploadByID(id)
}

func (service *CoreService) DeleteUpload(id string) error {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.databaseService.DeleteUpload(id)
}

// Thumbnail renders a preview of the stored upload at the configured width.
func (service *CoreService) Thumbnail(id string) ([]byte, error) {
	upload, err := service.databaseService.GetUploadByID(id)
	if err != nil {
		return nil, err
	}
	return thumbnail.Generate(upload.Data, service.config.Uploader.ThumbnailWidth)
}

func (service *CoreService) Close() error {
	return errors.Join(service.cache.Close(), service.databaseService.Close())
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// toRecords mirrors stored uploads as list entries so the intake rules see
// the persisted list. Only identity and metadata are carried.
func toRecords(uploads []*database.Upload) []*intake.ImageRecord {
	records := make([]*intake.ImageRecord, 0, len(uploads))
	for _, u := range uploads {
		record := &intake.ImageRecord{
			ID:          u.ID,
			Handle:      intake.NewMemoryFile(u.Name, nil),
			ContentType: u.ContentType,
			ByteSize:    u.Size,
		}
		if u.HasDimensions() {
			record.Dimensions = &intake.Dimensions{Width: u.Width, Height: u.Height}
		}
		records = append(records, record)
	}
	return records
}

func toUpload(record *intake.ImageRecord) (*database.Upload, error) {
	rc, err := record.Handle.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to reopen %s: %w", record.Name(), err)
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", record.Name(), err)
	}

	upload := &database.Upload{
		ID:          record.ID,
		Name:        record.Name(),
		ContentType: record.ContentType,
		Size:        record.ByteSize,
		Data:        data,
	}
	if record.Dimensions != nil {
		upload.Width = record.Dimensions.Width
		upload.Height = record.Dimensions.Height
	}
	return upload, nil
}

func droppedIDs(stored []*database.Upload, list []*intake.ImageRecord) []string {
	kept := make(map[string]bool, len(list))
	for _, r := range list {
		kept[r.ID] = true
	}
	var dropped []string
	for _, u := range stored {
		if !kept[u.ID] {
			dropped = append(dropped, u.ID)
		}
	}
	return dropped
}
