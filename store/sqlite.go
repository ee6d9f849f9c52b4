package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vektordb/vektor/model"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is a Store backed by a local SQLite database.
//
// Durability discipline: WAL journal mode with synchronous=FULL, one implicit
// transaction per mutating statement. Internal ids come from an AUTOINCREMENT
// primary key, which SQLite guarantees to be monotonic and never reused.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	internal_id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	vector      BLOB NOT NULL,
	metadata    TEXT
);
CREATE INDEX IF NOT EXISTS idx_records_external_id ON records(external_id);
`

// OpenSQLite opens (or creates) the record store at path and ensures the
// schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// SQLite allows a single writer; a small pool is enough for readers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Create implements Store.
func (s *SQLite) Create(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error) {
	vecBlob, err := encodeVector(vector)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	metaJSON, err := encodeMetadata(meta)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	var id model.InternalID
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO records (external_id, vector, metadata) VALUES (?, ?, ?) RETURNING internal_id`,
		externalID, vecBlob, metaJSON,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateKey, externalID)
		}
		return 0, fmt.Errorf("store: insert failed: %w", err)
	}

	return id, nil
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT internal_id, external_id, vector, metadata FROM records WHERE external_id = ?`, externalID))
	if err != nil {
		return 0, err
	}

	if vector != nil {
		rec.Vector = vector
	}
	if meta != nil {
		rec.Metadata = meta
	}

	vecBlob, err := encodeVector(rec.Vector)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	metaJSON, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET vector = ?, metadata = ? WHERE internal_id = ?`,
		vecBlob, metaJSON, rec.InternalID); err != nil {
		return 0, fmt.Errorf("store: update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit failed: %w", err)
	}

	return rec.InternalID, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, externalID string) (model.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT internal_id, external_id, vector, metadata FROM records WHERE external_id = ?`, externalID))
}

// GetByInternalID implements Store.
func (s *SQLite) GetByInternalID(ctx context.Context, id model.InternalID) (model.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT internal_id, external_id, vector, metadata FROM records WHERE internal_id = ?`, id))
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, externalID string) (model.InternalID, error) {
	var id model.InternalID
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM records WHERE external_id = ? RETURNING internal_id`, externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, externalID)
	}
	if err != nil {
		return 0, fmt.Errorf("store: delete failed: %w", err)
	}
	return id, nil
}

// Scan implements Store.
func (s *SQLite) Scan(ctx context.Context, fn func(model.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT internal_id, external_id, vector, metadata FROM records ORDER BY internal_id ASC`)
	if err != nil {
		return fmt.Errorf("store: scan query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      model.Record
			vecBlob  []byte
			metaJSON sql.NullString
		)
		if err := rows.Scan(&rec.InternalID, &rec.ExternalID, &vecBlob, &metaJSON); err != nil {
			return fmt.Errorf("store: scan row failed: %w", err)
		}
		if rec.Vector, err = decodeVector(vecBlob); err != nil {
			return fmt.Errorf("store: record %d: %w", rec.InternalID, err)
		}
		if rec.Metadata, err = decodeMetadata(metaJSON); err != nil {
			return fmt.Errorf("store: record %d: %w", rec.InternalID, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	return rows.Err()
}

// Count implements Store.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count failed: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.Record, error) {
	var (
		rec      model.Record
		vecBlob  []byte
		metaJSON sql.NullString
	)
	err := row.Scan(&rec.InternalID, &rec.ExternalID, &vecBlob, &metaJSON)
	if err == sql.ErrNoRows {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("store: scan failed: %w", err)
	}
	if rec.Vector, err = decodeVector(vecBlob); err != nil {
		return model.Record{}, fmt.Errorf("store: record %d: %w", rec.InternalID, err)
	}
	if rec.Metadata, err = decodeMetadata(metaJSON); err != nil {
		return model.Record{}, fmt.Errorf("store: record %d: %w", rec.InternalID, err)
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// encodeVector converts a float32 slice to bytes using little-endian encoding.
func encodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, fmt.Errorf("nil vector")
	}
	buf := new(bytes.Buffer)
	buf.Grow(4 + 4*len(vector))
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("encode vector data: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeVector converts bytes back to a float32 slice.
func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 || int(length)*4 != buf.Len() {
		return nil, fmt.Errorf("corrupt vector blob: declared %d floats, %d bytes remain", length, buf.Len())
	}
	vector := make([]float32, length)
	if err := binary.Read(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("decode vector data: %w", err)
	}
	return vector, nil
}

func encodeMetadata(meta model.Metadata) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMetadata(s sql.NullString) (model.Metadata, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var meta model.Metadata
	if err := json.Unmarshal([]byte(s.String), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}
