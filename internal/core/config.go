package core

import (
	"fmt"
	"os"
	"time"

	"github.com/jo-hoe/imageintake/internal/cache"
	"github.com/jo-hoe/imageintake/internal/common"
	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/upload"
	"github.com/jo-hoe/imageintake/internal/widget"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 8080
	DefaultThumbnailWidth = 140
)

type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

type Database struct {
	Type             string `yaml:"type" validate:"required,oneof=sqlite"`
	ConnectionString string `yaml:"connectionString" validate:"required"`
}

type Cache struct {
	Type       string        `yaml:"type" validate:"omitempty,oneof=memory redis"`
	Address    string        `yaml:"address"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" validate:"gte=0"`
	TTL        time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxEntries int           `yaml:"maxEntries" validate:"gte=0"`
}

// Uploader holds the rules applied to incoming images and the destination
// used by the client side uploader.
type Uploader struct {
	MaxNumber        int               `yaml:"maxNumber" validate:"gte=0"`
	MaxFileSize      int64             `yaml:"maxFileSize" validate:"gte=0"`
	AcceptType       []string          `yaml:"acceptType" validate:"dive,required"`
	ResolutionType   string            `yaml:"resolutionType"`
	ResolutionWidth  int               `yaml:"resolutionWidth" validate:"gte=0"`
	ResolutionHeight int               `yaml:"resolutionHeight" validate:"gte=0"`
	Multiple         *bool             `yaml:"multiple"`
	DataURLKey       string            `yaml:"dataURLKey"`
	AutoPending      bool              `yaml:"autoPending"`
	UploadURL        string            `yaml:"uploadURL" validate:"omitempty,url"`
	FieldName        string            `yaml:"fieldName"`
	Headers          map[string]string `yaml:"headers"`
	ThumbnailWidth   int               `yaml:"thumbnailWidth" validate:"gte=0"`
}

type ServiceConfig struct {
	Port     int      `yaml:"port" validate:"gte=0,lte=65535"`
	Log      Log      `yaml:"log"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Uploader Uploader `yaml:"uploader"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, fills in defaults and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = cache.TypeMemory
	}
	u := &c.Uploader
	if u.MaxNumber == 0 {
		u.MaxNumber = widget.DefaultMaxNumber
	}
	if u.DataURLKey == "" {
		u.DataURLKey = intake.DefaultDataURLKey
	}
	if u.FieldName == "" {
		u.FieldName = upload.DefaultFieldName
	}
	if u.Multiple == nil {
		multiple := true
		u.Multiple = &multiple
	}
	if u.ThumbnailWidth == 0 {
		u.ThumbnailWidth = DefaultThumbnailWidth
	}
}

func (c *ServiceConfig) validate() error {
	if err := common.StructValidator().Struct(c); err != nil {
		return err
	}
	if c.Cache.Type == cache.TypeRedis && c.Cache.Address == "" {
		return fmt.Errorf("cache address is required for type %q", cache.TypeRedis)
	}
	if _, err := c.Uploader.Resolution(); err != nil {
		return err
	}
	return nil
}

// Resolution converts the configured resolution fields into a rule.
func (u Uploader) Resolution() (intake.ResolutionRule, error) {
	mode, err := intake.ParseResolutionMode(u.ResolutionType)
	if err != nil {
		return intake.ResolutionRule{}, err
	}
	rule := intake.ResolutionRule{Mode: mode, Width: u.ResolutionWidth, Height: u.ResolutionHeight}
	if mode == intake.ResolutionRatio && (u.ResolutionWidth == 0 || u.ResolutionHeight == 0) {
		return intake.ResolutionRule{}, fmt.Errorf("resolution ratio requires a non-zero width and height")
	}
	return rule, nil
}

func (u Uploader) AllowMultiple() bool {
	return u.Multiple == nil || *u.Multiple
}

// ValidationConfig is the rule set applied to a batch arriving at the server.
func (u Uploader) ValidationConfig() intake.ValidationConfig {
	rule, _ := u.Resolution()
	return intake.ValidationConfig{
		MaxCount:           u.MaxNumber,
		MaxByteSize:        u.MaxFileSize,
		AcceptedExtensions: u.AcceptType,
		Resolution:         rule,
		PendingUpdate:      intake.NoPendingUpdate(),
	}
}

func (u Uploader) WidgetOptions() widget.Options {
	rule, _ := u.Resolution()
	return widget.Options{
		MaxNumber:   u.MaxNumber,
		MaxFileSize: u.MaxFileSize,
		AcceptType:  u.AcceptType,
		Resolution:  rule,
		Multiple:    u.AllowMultiple(),
		DataURLKey:  u.DataURLKey,
		AutoPending: u.AutoPending,
		UploadURL:   u.UploadURL,
		FieldName:   u.FieldName,
		Headers:     u.Headers,
	}
}

func (c Cache) toCacheConfig() cache.Config {
	return cache.Config{
		Type:       c.Type,
		Address:    c.Address,
		Password:   c.Password,
		DB:         c.DB,
		TTL:        c.TTL,
		MaxEntries: c.MaxEntries,
	}
}
