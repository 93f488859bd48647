// Package history keeps a local SQLite log of altitude estimates.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/menta2k/video-altitude/pkg/geometry"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history record not found")

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite-backed persistence for estimates.
type Store struct {
	DB *sql.DB
}

// Record is one persisted estimate.
type Record struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Source       string          `json:"source,omitempty"`
	Camera       string          `json:"camera"`
	Method       geometry.Method `json:"method"`
	RealSizeCM   float64         `json:"real_size_cm"`
	PixelSizePx  float64         `json:"pixel_size_px"`
	ImageWidthPx int             `json:"image_width_px"`
	GSDCmPerPx   float64         `json:"gsd_cm_per_px"`
	AltitudeCM   float64         `json:"altitude_cm"`
	Confidence   *float64        `json:"confidence,omitempty"`
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS estimates (
            id TEXT PRIMARY KEY,
            created_at TEXT NOT NULL,
            source TEXT,
            camera TEXT NOT NULL,
            method TEXT NOT NULL,
            real_size_cm REAL NOT NULL,
            pixel_size_px REAL NOT NULL,
            image_width_px INTEGER NOT NULL,
            gsd_cm_per_px REAL NOT NULL,
            altitude_cm REAL NOT NULL,
            confidence REAL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Add stores r and returns it with ID and CreatedAt filled in.
func (s *Store) Add(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO estimates (id, created_at, source, camera, method, real_size_cm, pixel_size_px,
            image_width_px, gsd_cm_per_px, altitude_cm, confidence)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.Format(timeLayout), r.Source, r.Camera, r.Method.String(),
		r.RealSizeCM, r.PixelSizePx, r.ImageWidthPx, r.GSDCmPerPx, r.AltitudeCM, r.Confidence,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert estimate: %w", err)
	}
	return r, nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT id, created_at, source, camera, method, real_size_cm, pixel_size_px,
            image_width_px, gsd_cm_per_px, altitude_cm, confidence
          FROM estimates ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, created_at, source, camera, method, real_size_cm, pixel_size_px,
            image_width_px, gsd_cm_per_px, altitude_cm, confidence
         FROM estimates WHERE id = ?`, id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Record, error) {
	var (
		r          Record
		created    string
		source     sql.NullString
		method     string
		confidence sql.NullFloat64
	)
	err := sc.Scan(&r.ID, &created, &source, &r.Camera, &method, &r.RealSizeCM, &r.PixelSizePx,
		&r.ImageWidthPx, &r.GSDCmPerPx, &r.AltitudeCM, &confidence)
	if err != nil {
		return Record{}, err
	}
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Record{}, fmt.Errorf("record %s: bad timestamp %q: %w", r.ID, created, err)
	}
	if r.Method, err = geometry.ParseMethod(method); err != nil {
		return Record{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.Source = source.String
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	return r, nil
}
