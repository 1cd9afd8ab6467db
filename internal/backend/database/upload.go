package database

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("upload not found")

type Upload struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	Width       int       `db:"width" json:"width,omitempty"`
	Height      int       `db:"height" json:"height,omitempty"`
	Data        []byte    `db:"data" json:"-"` // raw file content as received
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// HasDimensions is false for content whose size could not be decoded.
func (u *Upload) HasDimensions() bool {
	return u.Width > 0 && u.Height > 0
}
