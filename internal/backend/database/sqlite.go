package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
	now              func() time.Time
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" opens its own database
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
		now:              time.Now,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS uploads (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		data BLOB,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, err
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) CreateUploads(uploads []*Upload) ([]string, error) {
	return s.inTransaction(func(tx *sql.Tx) ([]string, error) {
		return s.insertUploads(tx, uploads)
	})
}

func (s *SQLiteDatabase) ReplaceAll(uploads []*Upload) ([]string, error) {
	return s.inTransaction(func(tx *sql.Tx) ([]string, error) {
		if _, err := tx.Exec("DELETE FROM uploads"); err != nil {
			return nil, fmt.Errorf("failed to clear uploads: %w", err)
		}
		return s.insertUploads(tx, uploads)
	})
}

func (s *SQLiteDatabase) inTransaction(fn func(tx *sql.Tx) ([]string, error)) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	ids, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit uploads: %w", err)
	}
	return ids, nil
}

func (s *SQLiteDatabase) insertUploads(tx *sql.Tx, uploads []*Upload) ([]string, error) {
	stmt, err := tx.Prepare(`INSERT INTO uploads (id, name, content_type, size, width, height, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	ids := make([]string, 0, len(uploads))
	createdAt := s.now().UTC()
	for _, upload := range uploads {
		id := upload.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.Exec(id, upload.Name, upload.ContentType, upload.Size,
			upload.Width, upload.Height, upload.Data, createdAt.UnixNano()); err != nil {
			return nil, fmt.Errorf("failed to insert upload %s: %w", upload.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLiteDatabase) ReplaceUpload(id string, upload *Upload) error {
	result, err := s.db.Exec(`UPDATE uploads
		SET name = ?, content_type = ?, size = ?, width = ?, height = ?, data = ?, created_at = ?
		WHERE id = ?`,
		upload.Name, upload.ContentType, upload.Size, upload.Width, upload.Height, upload.Data,
		s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to replace upload %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

func (s *SQLiteDatabase) GetUploads() ([]*Upload, error) {
	rows, err := s.db.Query(`SELECT id, name, content_type, size, width, height, created_at
		FROM uploads ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	uploads := []*Upload{}
	for rows.Next() {
		var upload Upload
		var createdAt int64
		if err := rows.Scan(&upload.ID, &upload.Name, &upload.ContentType, &upload.Size,
			&upload.Width, &upload.Height, &createdAt); err != nil {
			return nil, err
		}
		upload.CreatedAt = time.Unix(0, createdAt).UTC()
		uploads = append(uploads, &upload)
	}
	return uploads, rows.Err()
}

func (s *SQLiteDatabase) GetUploadByID(id string) (*Upload, error) {
	row := s.db.QueryRow(`SELECT id, name, content_type, size, width, height, data, created_at
		FROM uploads WHERE id = ?`, id)

	var upload Upload
	var createdAt int64
	err := row.Scan(&upload.ID, &upload.Name, &upload.ContentType, &upload.Size,
		&upload.Width, &upload.Height, &upload.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	upload.CreatedAt = time.Unix(0, createdAt).UTC()
	return &upload, nil
}

func (s *SQLiteDatabase) DeleteUpload(id string) error {
	result, err := s.db.Exec("DELETE FROM uploads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
