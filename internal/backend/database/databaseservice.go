package database

import "database/sql"

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	Close() error

	// CreateUploads inserts all uploads in one transaction and returns their
	// IDs in input order. Uploads without an ID get a generated one. Either
	// every row is written or none is.
	CreateUploads(uploads []*Upload) ([]string, error)
	// ReplaceAll removes every stored upload and inserts uploads in their
	// place within one transaction.
	ReplaceAll(uploads []*Upload) ([]string, error)
	// ReplaceUpload overwrites the content of an existing upload while keeping
	// its ID and its position in the listing.
	ReplaceUpload(id string, upload *Upload) error
	// GetUploads lists uploads in insertion order without their content.
	GetUploads() ([]*Upload, error)
	GetUploadByID(id string) (*Upload, error)
	DeleteUpload(id string) error
}
