// Package store persists finished documents: a sqlite row per document and
// the assembled PDF on disk.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jackzampolin/scanline/internal/searchpdf"
)

var (
	// ErrNotFound is returned when a document id is unknown.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned when saving under an id that is already stored.
	ErrExists = errors.New("document already exists")
)

// Record is what the pipeline hands to a sink once a document is assembled.
type Record struct {
	// DocumentID is generated when empty.
	DocumentID string
	UserID     string
	Title      string
	PDF        []byte
	Metadata   searchpdf.Metadata
}

// Document is a stored document row.
type Document struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id,omitempty"`
	Title             string    `json:"title,omitempty"`
	PageCount         int       `json:"page_count"`
	TotalTextLength   int       `json:"total_text_length"`
	AverageConfidence float64   `json:"average_confidence"`
	CompressionRatio  float64   `json:"compression_ratio"`
	PDFPath           string    `json:"pdf_path"`
	PDFSizeBytes      int64     `json:"pdf_size_bytes"`
	PageTexts         []string  `json:"page_texts,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Text joins the page texts with form feeds.
func (d *Document) Text() string {
	return strings.Join(d.PageTexts, "\f")
}

// Sink accepts finished documents.
type Sink interface {
	Save(ctx context.Context, rec Record) (*Document, error)
}

// Store is the sqlite-backed Sink.
type Store struct {
	db     *sql.DB
	pdfDir string
	logger *slog.Logger
	now    func() time.Time
}

// Config configures a Store.
type Config struct {
	// DatabasePath is the sqlite file. ":memory:" is accepted for tests.
	DatabasePath string
	// PDFDir receives one <id>.pdf per document.
	PDFDir string
	Logger *slog.Logger
}

// Open connects to the database, runs migrations and ensures the PDF
// directory exists.
func Open(cfg Config) (*Store, error) {
	if cfg.DatabasePath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.PDFDir == "" {
		return nil, errors.New("pdf directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.PDFDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pdf dir: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{
		db:     db,
		pdfDir: cfg.PDFDir,
		logger: cfg.Logger.With("component", "store"),
		now:    time.Now,
	}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			page_count INTEGER NOT NULL,
			total_text_length INTEGER NOT NULL,
			average_confidence REAL NOT NULL,
			compression_ratio REAL NOT NULL,
			pdf_path TEXT NOT NULL,
			pdf_size_bytes INTEGER NOT NULL,
			page_texts TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save writes the PDF to disk, then inserts the row. A failed insert removes
// the file again.
func (s *Store) Save(ctx context.Context, rec Record) (*Document, error) {
	if len(rec.PDF) == 0 {
		return nil, errors.New("empty pdf")
	}
	id := rec.DocumentID
	if id == "" {
		id = uuid.New().String()
	} else {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, id).Scan(&n); err != nil {
			return nil, fmt.Errorf("check document: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: %s", ErrExists, id)
		}
	}

	path := filepath.Join(s.pdfDir, id+".pdf")
	if err := writeFileAtomic(path, rec.PDF); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	texts, err := json.Marshal(rec.Metadata.PageTexts)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("encode page texts: %w", err)
	}

	doc := &Document{
		ID:                id,
		UserID:            rec.UserID,
		Title:             rec.Title,
		PageCount:         rec.Metadata.PageCount,
		TotalTextLength:   rec.Metadata.TotalTextLength,
		AverageConfidence: rec.Metadata.AverageConfidence,
		CompressionRatio:  rec.Metadata.CompressionRatio,
		PDFPath:           path,
		PDFSizeBytes:      int64(len(rec.PDF)),
		PageTexts:         rec.Metadata.PageTexts,
		CreatedAt:         s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, title, page_count, total_text_length,
			average_confidence, compression_ratio, pdf_path, pdf_size_bytes, page_texts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Title, doc.PageCount, doc.TotalTextLength,
		doc.AverageConfidence, doc.CompressionRatio, doc.PDFPath, doc.PDFSizeBytes, string(texts), doc.CreatedAt)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove orphaned pdf", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}

	s.logger.Info("document stored", "id", id, "pages", doc.PageCount, "bytes", doc.PDFSizeBytes)
	return doc, nil
}

const selectColumns = `id, user_id, title, page_count, total_text_length, average_confidence,
	compression_ratio, pdf_path, pdf_size_bytes, page_texts, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc   Document
		texts string
	)
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.PageCount, &doc.TotalTextLength,
		&doc.AverageConfidence, &doc.CompressionRatio, &doc.PDFPath, &doc.PDFSizeBytes, &texts, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(texts), &doc.PageTexts); err != nil {
		return nil, fmt.Errorf("decode page texts: %w", err)
	}
	return &doc, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListOptions filter List.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}

// List returns documents newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `SELECT ` + selectColumns + ` FROM documents`
	args := []any{}
	if opts.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, opts.UserID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// PDF reads the stored PDF for a document.
func (s *Store) PDF(ctx context.Context, id string) ([]byte, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(doc.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return data, nil
}

// Delete removes the row and the PDF file.
func (s *Store) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := os.Remove(doc.PDFPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove pdf", "path", doc.PDFPath, "error", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdf-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
