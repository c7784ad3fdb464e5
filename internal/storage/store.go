package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/core"
	"github.com/afraponix/batchtrack/internal/logging"
)

var (
	// ErrNotFound is returned when no batch has the requested identifier.
	ErrNotFound = errors.New("batch not found")
	// ErrDuplicate is returned when a batch identifier is already stored.
	ErrDuplicate = errors.New("batch already exists")
	// ErrAlreadyHarvested is returned when harvesting a harvested batch.
	ErrAlreadyHarvested = errors.New("batch already harvested")
)

// Store provides SQLite-backed persistence for plant batches and their events.
type Store struct {
	db  *sql.DB
	log *logging.Logger
	now func() time.Time
}

// DefaultDBPath returns $XDG_DATA_HOME/batchtrack/batchtrack.db, falling back
// to ~/.local/share.
func DefaultDBPath() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "batchtrack", "batchtrack.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "batchtrack", "batchtrack.db"), nil
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open: create dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	// SQLite allows a single writer; one connection keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for event and creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store bound to an existing database handle.
// A nil logger discards database traces.
func New(db *sql.DB, log *logging.Logger, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{db: db, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) check(op string) error {
	if s == nil {
		return fmt.Errorf("%s: store is nil", op)
	}
	if s.db == nil {
		return fmt.Errorf("%s: db is nil", op)
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// CreateBatch inserts a new batch together with its planted event.
// The batch's CreatedAt is set to now when zero.
func (s *Store) CreateBatch(b core.Batch) error {
	if err := s.check("create batch"); err != nil {
		return err
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("create batch: batch ID is empty")
	}
	if strings.TrimSpace(b.CropType) == "" {
		return fmt.Errorf("create batch: crop type is empty")
	}
	if b.PlantCount < 0 {
		return fmt.Errorf("create batch: plant count must be >= 0")
	}
	if b.DaysToHarvest < 0 || b.DaysToHarvest > batch.MaxDaysToHarvest {
		return fmt.Errorf("create batch: days to harvest must be between 0 and %d", batch.MaxDaysToHarvest)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}

	transaction, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("create batch: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	var exists int
	err = transaction.QueryRow(`SELECT COUNT(1) FROM plant_batches WHERE batch_id = ?`, b.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create batch: check existing: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("create batch: %s: %w", b.ID, ErrDuplicate)
	}

	var growBed any
	if b.GrowBedID != nil {
		growBed = *b.GrowBedID
	}

	sqlString := `INSERT INTO plant_batches (batch_id, system_id, grow_bed_id, crop_type, seed_variety, plant_count, batch_created_date, days_to_harvest, notes, created_at)
	              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = transaction.Exec(sqlString, b.ID, b.SystemID, growBed, b.CropType, b.SeedVariety, b.PlantCount,
		b.CreatedDate, b.DaysToHarvest, nullableString(b.Notes), formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("create batch: insert: %w", err)
	}

	if err := appendEvent(transaction, b.ID, core.EventPlanted, b.CreatedAt, nil); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("create batch: commit: %w", err)
	}
	s.log.DB("INSERT", "plant_batches", b.ID)
	return nil
}

// AppendEvent appends an immutable event row for a batch.
func (s *Store) AppendEvent(batchID string, kind core.EventKind, note *string) error {
	if err := s.check("append event"); err != nil {
		return err
	}
	if strings.TrimSpace(batchID) == "" {
		return fmt.Errorf("append event: batch ID is empty")
	}
	if kind == "" {
		return fmt.Errorf("append event: kind is empty")
	}

	var exists int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM plant_batches WHERE batch_id = ?`, batchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("append event: check batch: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("append event: %s: %w", batchID, ErrNotFound)
	}
	if err := appendEvent(s.db, batchID, kind, s.now(), note); err != nil {
		return err
	}
	s.log.DB("INSERT", "batch_events", string(kind))
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func appendEvent(ex execer, batchID string, kind core.EventKind, at time.Time, note *string) error {
	sqlString := `INSERT INTO batch_events (uid, batch_id, kind, at, note) VALUES (?, ?, ?, ?, ?)`
	_, err := ex.Exec(sqlString, uuid.NewString(), batchID, string(kind), formatTime(at), nullableString(note))
	if err != nil {
		return fmt.Errorf("append event: insert: %w", err)
	}
	return nil
}

const batchColumns = `batch_id, system_id, grow_bed_id, crop_type, seed_variety, plant_count, batch_created_date, days_to_harvest, notes, created_at, harvested_at, harvest_weight, plants_harvested`

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (core.Batch, error) {
	var b core.Batch
	var growBed sql.NullInt64
	var notes sql.NullString
	var createdAtStr string
	var harvestedAtStr sql.NullString
	var weight sql.NullFloat64
	var plantsHarvested sql.NullInt64

	err := row.Scan(&b.ID, &b.SystemID, &growBed, &b.CropType, &b.SeedVariety, &b.PlantCount,
		&b.CreatedDate, &b.DaysToHarvest, &notes, &createdAtStr, &harvestedAtStr, &weight, &plantsHarvested)
	if err != nil {
		return core.Batch{}, err
	}

	b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return core.Batch{}, fmt.Errorf("parse created_at: %w", err)
	}
	if harvestedAtStr.Valid {
		var t time.Time
		t, err = time.Parse(time.RFC3339Nano, harvestedAtStr.String)
		if err != nil {
			return core.Batch{}, fmt.Errorf("parse harvested_at: %w", err)
		}
		b.HarvestedAt = &t
	}
	if growBed.Valid {
		v := growBed.Int64
		b.GrowBedID = &v
	}
	if notes.Valid {
		n := notes.String
		b.Notes = &n
	}
	if weight.Valid {
		w := weight.Float64
		b.HarvestWeight = &w
	}
	if plantsHarvested.Valid {
		p := int(plantsHarvested.Int64)
		b.PlantsHarvested = &p
	}
	return b, nil
}

// GetBatch returns the batch and its ordered event history.
func (s *Store) GetBatch(id string) (core.Batch, []core.Event, error) {
	if err := s.check("get batch"); err != nil {
		return core.Batch{}, nil, err
	}
	if strings.TrimSpace(id) == "" {
		return core.Batch{}, nil, fmt.Errorf("get batch: batch ID is empty")
	}

	row := s.db.QueryRow(`SELECT `+batchColumns+` FROM plant_batches WHERE batch_id = ?`, id)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Batch{}, nil, fmt.Errorf("get batch: %s: %w", id, ErrNotFound)
		}
		return core.Batch{}, nil, fmt.Errorf("get batch: scan: %w", err)
	}

	sqlEvents := `SELECT id, uid, batch_id, kind, at, note FROM batch_events WHERE batch_id = ? ORDER BY at ASC, id ASC`
	rows, err := s.db.Query(sqlEvents, id)
	if err != nil {
		return core.Batch{}, nil, fmt.Errorf("get batch: query events: %w", err)
	}
	defer rows.Close()

	events := make([]core.Event, 0)
	for rows.Next() {
		var event core.Event
		var kind string
		var atStr string
		var noteStr sql.NullString

		err = rows.Scan(&event.ID, &event.UID, &event.BatchID, &kind, &atStr, &noteStr)
		if err != nil {
			return core.Batch{}, nil, fmt.Errorf("get batch: scan event: %w", err)
		}
		event.Kind = core.EventKind(kind)

		event.At, err = time.Parse(time.RFC3339Nano, atStr)
		if err != nil {
			return core.Batch{}, nil, fmt.Errorf("get batch: parse event at: %w", err)
		}
		if noteStr.Valid {
			n := noteStr.String
			event.Note = &n
		}

		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return core.Batch{}, nil, fmt.Errorf("get batch: events rows: %w", err)
	}

	s.log.DB("SELECT", "plant_batches", id)
	return b, events, nil
}

// ListOptions filters and pages ListBatches.
type ListOptions struct {
	Limit            int
	Offset           int
	IncludeHarvested bool
	CropType         string
}

// ListBatches returns batches ordered by identifier, which is also start order.
func (s *Store) ListBatches(opts ListOptions) ([]core.Batch, error) {
	if err := s.check("list batches"); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("list batches: limit must be > 0")
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("list batches: offset must be >= 0")
	}

	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if !opts.IncludeHarvested {
		clauses = append(clauses, "harvested_at IS NULL")
	}
	if crop := strings.TrimSpace(opts.CropType); crop != "" {
		clauses = append(clauses, "crop_type = ?")
		args = append(args, crop)
	}

	sqlList := `SELECT ` + batchColumns + ` FROM plant_batches`
	if len(clauses) > 0 {
		sqlList += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	sqlList += ` ORDER BY batch_id ASC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.Query(sqlList, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: query: %w", err)
	}
	defer rows.Close()

	batches := make([]core.Batch, 0, opts.Limit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("list batches: scan: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: rows: %w", err)
	}

	s.log.DB("SELECT", "plant_batches", map[string]any{"count": len(batches), "offset": opts.Offset})
	return batches, nil
}

// CountActive returns the number of batches not yet harvested.
func (s *Store) CountActive() (int, error) {
	if err := s.check("count active"); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM plant_batches WHERE harvested_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// UpdateDaysToHarvest changes a batch's harvest timeline and records a
// rescheduled event.
func (s *Store) UpdateDaysToHarvest(id string, days int) error {
	if err := s.check("update days to harvest"); err != nil {
		return err
	}
	if days < 0 || days > batch.MaxDaysToHarvest {
		return fmt.Errorf("update days to harvest: days must be between 0 and %d", batch.MaxDaysToHarvest)
	}

	transaction, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("update days to harvest: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	result, err := transaction.Exec(`UPDATE plant_batches SET days_to_harvest = ? WHERE batch_id = ?`, days, id)
	if err != nil {
		return fmt.Errorf("update days to harvest: update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update days to harvest: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update days to harvest: %s: %w", id, ErrNotFound)
	}

	note := fmt.Sprintf("days to harvest set to %d", days)
	if err := appendEvent(transaction, id, core.EventRescheduled, s.now(), &note); err != nil {
		return fmt.Errorf("update days to harvest: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("update days to harvest: commit: %w", err)
	}
	s.log.DB("UPDATE", "plant_batches", id)
	return nil
}

// Harvest describes the outcome of harvesting a batch.
type Harvest struct {
	At              time.Time
	Weight          *float64
	PlantsHarvested *int
	Note            *string
}

// MarkHarvested records the harvest of a batch and appends a harvested event.
func (s *Store) MarkHarvested(id string, h Harvest) error {
	if err := s.check("mark harvested"); err != nil {
		return err
	}
	if h.Weight != nil && *h.Weight < 0 {
		return fmt.Errorf("mark harvested: weight must be >= 0")
	}
	if h.PlantsHarvested != nil && *h.PlantsHarvested < 0 {
		return fmt.Errorf("mark harvested: plants harvested must be >= 0")
	}
	if h.At.IsZero() {
		h.At = s.now()
	}

	transaction, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("mark harvested: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	var harvestedAt sql.NullString
	err = transaction.QueryRow(`SELECT harvested_at FROM plant_batches WHERE batch_id = ?`, id).Scan(&harvestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark harvested: %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("mark harvested: read: %w", err)
	}
	if harvestedAt.Valid {
		return fmt.Errorf("mark harvested: %s: %w", id, ErrAlreadyHarvested)
	}

	var weight, plants any
	if h.Weight != nil {
		weight = *h.Weight
	}
	if h.PlantsHarvested != nil {
		plants = *h.PlantsHarvested
	}

	_, err = transaction.Exec(`UPDATE plant_batches SET harvested_at = ?, harvest_weight = ?, plants_harvested = ? WHERE batch_id = ?`,
		formatTime(h.At), weight, plants, id)
	if err != nil {
		return fmt.Errorf("mark harvested: update: %w", err)
	}

	if err := appendEvent(transaction, id, core.EventHarvested, h.At, h.Note); err != nil {
		return fmt.Errorf("mark harvested: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("mark harvested: commit: %w", err)
	}
	s.log.DB("UPDATE", "plant_batches", id)
	return nil
}

// DeleteBatch permanently deletes a batch and its associated events.
func (s *Store) DeleteBatch(id string) error {
	if err := s.check("delete batch"); err != nil {
		return err
	}

	transaction, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete batch: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.Exec(`DELETE FROM batch_events WHERE batch_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete batch: delete events: %w", err)
	}

	result, err := transaction.Exec(`DELETE FROM plant_batches WHERE batch_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete batch: delete batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete batch: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete batch: %s: %w", id, ErrNotFound)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("delete batch: commit: %w", err)
	}
	s.log.DB("DELETE", "plant_batches", id)
	return nil
}
