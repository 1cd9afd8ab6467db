package intake

import (
	"encoding/json"
)

// DefaultDataURLKey is the field name used for the encoded content when the
// caller does not configure one.
const DefaultDataURLKey = "dataURL"

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageRecord is one pending or accepted image. Records are treated as
// immutable once they are part of a list; operations that need a different
// identity produce a copy.
type ImageRecord struct {
	ID             string
	Handle         FileHandle
	EncodedContent string
	ContentType    string
	ByteSize       int64
	// Dimensions is nil when the content could not be decoded as an image.
	Dimensions *Dimensions
	// DataURLKey names the JSON field holding EncodedContent.
	DataURLKey string
}

// Name returns the file name of the underlying handle.
func (r *ImageRecord) Name() string {
	if r.Handle == nil {
		return ""
	}
	return r.Handle.Name()
}

func (r *ImageRecord) withID(id string) *ImageRecord {
	clone := *r
	clone.ID = id
	return &clone
}

func (r *ImageRecord) withDataURLKey(key string) *ImageRecord {
	clone := *r
	clone.DataURLKey = key
	return &clone
}

type fileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// MarshalJSON renders the record in the shape consumers of the widget expect:
// the encoded content sits under the configured key next to "uniKey", "file"
// and "size".
func (r *ImageRecord) MarshalJSON() ([]byte, error) {
	key := r.DataURLKey
	if key == "" {
		key = DefaultDataURLKey
	}
	out := map[string]any{
		key:      r.EncodedContent,
		"uniKey": r.ID,
		"file": fileInfo{
			Name: r.Name(),
			Size: r.ByteSize,
			Type: r.ContentType,
		},
	}
	if r.Dimensions != nil {
		out["size"] = r.Dimensions
	}
	return json.Marshal(out)
}

// Handles returns the raw handles of the list in order.
func Handles(list []*ImageRecord) []FileHandle {
	handles := make([]FileHandle, 0, len(list))
	for _, r := range list {
		if r.Handle != nil {
			handles = append(handles, r.Handle)
		}
	}
	return handles
}
