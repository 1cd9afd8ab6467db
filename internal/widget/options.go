package widget

import (
	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/upload"
)

// DefaultMaxNumber caps the list when no maximum is configured.
const DefaultMaxNumber = 1000

type Options struct {
	MaxNumber   int
	MaxFileSize int64
	AcceptType  []string
	Resolution  intake.ResolutionRule
	Multiple    bool
	DataURLKey  string
	AutoPending bool
	UploadURL   string
	FieldName   string
	Headers     map[string]string
}

func (o Options) withDefaults() Options {
	if o.MaxNumber <= 0 {
		o.MaxNumber = DefaultMaxNumber
	}
	if o.DataURLKey == "" {
		o.DataURLKey = intake.DefaultDataURLKey
	}
	if o.FieldName == "" {
		o.FieldName = upload.DefaultFieldName
	}
	return o
}

func (o Options) validationConfig(pending intake.PendingUpdate) intake.ValidationConfig {
	return intake.ValidationConfig{
		MaxCount:           o.MaxNumber,
		MaxByteSize:        o.MaxFileSize,
		AcceptedExtensions: o.AcceptType,
		Resolution:         o.Resolution,
		PendingUpdate:      pending,
	}
}
