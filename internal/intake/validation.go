package intake

import (
	"fmt"
	"path/filepath"
	"strings"
)

type RuleID string

const (
	RuleMaxNumber   RuleID = "maxNumber"
	RuleMaxFileSize RuleID = "maxFileSize"
	RuleAcceptType  RuleID = "acceptType"
	RuleResolution  RuleID = "resolution"
)

type ResolutionMode int

const (
	ResolutionNone ResolutionMode = iota
	// ResolutionMinimum requires width and height to be at least the thresholds.
	ResolutionMinimum
	// ResolutionMaximum requires width and height to be at most the thresholds.
	ResolutionMaximum
	// ResolutionAbsolute requires an exact match.
	ResolutionAbsolute
	// ResolutionRatio requires the same aspect ratio as the thresholds.
	ResolutionRatio
)

func (m ResolutionMode) String() string {
	switch m {
	case ResolutionMinimum:
		return "minimum"
	case ResolutionMaximum:
		return "maximum"
	case ResolutionAbsolute:
		return "absolute"
	case ResolutionRatio:
		return "ratio"
	default:
		return "none"
	}
}

// ParseResolutionMode accepts the mode names plus the aliases "more" and "less".
func ParseResolutionMode(s string) (ResolutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ResolutionNone, nil
	case "minimum", "min", "more":
		return ResolutionMinimum, nil
	case "maximum", "max", "less":
		return ResolutionMaximum, nil
	case "absolute":
		return ResolutionAbsolute, nil
	case "ratio":
		return ResolutionRatio, nil
	default:
		return ResolutionNone, fmt.Errorf("invalid resolution type: %s", s)
	}
}

type ResolutionRule struct {
	Mode   ResolutionMode
	Width  int
	Height int
}

func (r ResolutionRule) allows(d Dimensions) bool {
	switch r.Mode {
	case ResolutionMinimum:
		return d.Width >= r.Width && d.Height >= r.Height
	case ResolutionMaximum:
		return d.Width <= r.Width && d.Height <= r.Height
	case ResolutionAbsolute:
		return d.Width == r.Width && d.Height == r.Height
	case ResolutionRatio:
		return d.Width*r.Height == d.Height*r.Width
	default:
		return true
	}
}

// PendingUpdate marks that the next batch replaces one entry instead of
// being added. The zero value means no target.
type PendingUpdate struct {
	index int
	set   bool
}

func NoPendingUpdate() PendingUpdate {
	return PendingUpdate{}
}

func UpdateAt(index int) PendingUpdate {
	return PendingUpdate{index: index, set: true}
}

func (p PendingUpdate) Index() (int, bool) {
	return p.index, p.set
}

func (p PendingUpdate) IsSet() bool {
	return p.set
}

// ValidationConfig is the rule set applied to one batch. Zero limits mean
// unbounded; an empty extension list accepts any image/* content type.
type ValidationConfig struct {
	MaxCount           int
	MaxByteSize        int64
	AcceptedExtensions []string
	Resolution         ResolutionRule
	PendingUpdate      PendingUpdate
}

type FailureReason struct {
	Rule RuleID `json:"rule"`
	// Files are indexes into the rejected batch.
	Files   []int  `json:"files,omitempty"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Failures []FailureReason `json:"failures,omitempty"`
}

func (r ValidationResult) Accepted() bool {
	return len(r.Failures) == 0
}

// Failure returns the reason recorded for rule, if any.
func (r ValidationResult) Failure(rule RuleID) (FailureReason, bool) {
	for _, f := range r.Failures {
		if f.Rule == rule {
			return f, true
		}
	}
	return FailureReason{}, false
}

func (r ValidationResult) Summary() string {
	if r.Accepted() {
		return "accepted"
	}
	parts := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Rule, f.Message))
	}
	return strings.Join(parts, "; ")
}

type rule func(batch []*ImageRecord, current []*ImageRecord, cfg ValidationConfig) *FailureReason

// Rules run in this order and every one of them runs; failures are collected
// rather than short-circuited.
var rules = []rule{
	checkCount,
	checkSize,
	checkType,
	checkResolution,
}

// Validate checks a materialized batch against the current list. It is pure
// and never touches file contents beyond the already materialized metadata.
func Validate(batch []*ImageRecord, current []*ImageRecord, cfg ValidationConfig) ValidationResult {
	var result ValidationResult
	for _, r := range rules {
		if failure := r(batch, current, cfg); failure != nil {
			result.Failures = append(result.Failures, *failure)
		}
	}
	return result
}

func checkCount(batch []*ImageRecord, current []*ImageRecord, cfg ValidationConfig) *FailureReason {
	if cfg.MaxCount <= 0 {
		return nil
	}
	count := len(current)
	if !cfg.PendingUpdate.IsSet() {
		count += len(batch)
	}
	if count <= cfg.MaxCount {
		return nil
	}
	return &FailureReason{
		Rule:    RuleMaxNumber,
		Message: fmt.Sprintf("%d images exceed the maximum of %d", count, cfg.MaxCount),
	}
}

func checkSize(batch []*ImageRecord, _ []*ImageRecord, cfg ValidationConfig) *FailureReason {
	if cfg.MaxByteSize <= 0 {
		return nil
	}
	return collect(RuleMaxFileSize, batch, func(r *ImageRecord) bool {
		return r.ByteSize > cfg.MaxByteSize
	}, fmt.Sprintf("larger than %d bytes", cfg.MaxByteSize))
}

func checkType(batch []*ImageRecord, _ []*ImageRecord, cfg ValidationConfig) *FailureReason {
	if len(cfg.AcceptedExtensions) == 0 {
		return collect(RuleAcceptType, batch, func(r *ImageRecord) bool {
			return !strings.HasPrefix(strings.ToLower(r.ContentType), "image/")
		}, "not an image")
	}

	accepted := make(map[string]bool, len(cfg.AcceptedExtensions))
	for _, ext := range cfg.AcceptedExtensions {
		accepted[normalizeExtension(ext)] = true
	}
	return collect(RuleAcceptType, batch, func(r *ImageRecord) bool {
		return !accepted[normalizeExtension(filepath.Ext(r.Name()))]
	}, "extension not accepted, allowed: "+strings.Join(cfg.AcceptedExtensions, ", "))
}

func checkResolution(batch []*ImageRecord, _ []*ImageRecord, cfg ValidationConfig) *FailureReason {
	res := cfg.Resolution
	if res.Mode == ResolutionNone {
		return nil
	}
	return collect(RuleResolution, batch, func(r *ImageRecord) bool {
		// unknown dimensions cannot be verified
		return r.Dimensions == nil || !res.allows(*r.Dimensions)
	}, fmt.Sprintf("resolution does not satisfy %s %dx%d", res.Mode, res.Width, res.Height))
}

func collect(id RuleID, batch []*ImageRecord, fails func(*ImageRecord) bool, reason string) *FailureReason {
	var indexes []int
	var names []string
	for i, r := range batch {
		if fails(r) {
			indexes = append(indexes, i)
			names = append(names, r.Name())
		}
	}
	if len(indexes) == 0 {
		return nil
	}
	return &FailureReason{
		Rule:    id,
		Files:   indexes,
		Message: fmt.Sprintf("%s: %s", strings.Join(names, ", "), reason),
	}
}

func normalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// AcceptString renders the extension list for a file picker's accept
// attribute, falling back to any image type.
func AcceptString(extensions []string) string {
	if len(extensions) == 0 {
		return "image/*"
	}
	parts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		parts = append(parts, "."+normalizeExtension(ext))
	}
	return strings.Join(parts, ", ")
}
