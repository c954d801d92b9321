package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/avachon/bubble-data-client/pkg/bubble"
)

// Row is one exported Bubble record. The payload stays JSON because
// Bubble tables are schemaless; the indexed columns carry what sinks
// downstream usually filter on.
type Row struct {
	bun.BaseModel `bun:"table:bubble_records"`

	ID        int64     `bun:"id,pk,autoincrement"`
	BubbleID  string    `bun:"bubble_id,notnull"`
	TypeName  string    `bun:"type_name,notnull"`
	Payload   string    `bun:"payload,notnull"`
	FetchedAt time.Time `bun:"fetched_at,notnull"`
}

// SQLSink streams records into the bubble_records table of a bun
// database. The caller owns the *bun.DB; Close does not touch it.
type SQLSink struct {
	db       *bun.DB
	typeName string
}

// NewSQLSink creates the sink and ensures the target table exists.
func NewSQLSink(ctx context.Context, db *bun.DB, typeName string) (*SQLSink, error) {
	if db == nil {
		return nil, fmt.Errorf("bun database is required")
	}

	_, err := db.NewCreateTable().
		Model((*Row)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create export table: %w", err)
	}

	return &SQLSink{db: db, typeName: typeName}, nil
}

// WriteBatch inserts one row per record in a single statement.
func (s *SQLSink) WriteBatch(ctx context.Context, records []bubble.Record) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record %q: %w", record.ID(), err)
		}
		rows = append(rows, Row{
			BubbleID:  record.ID(),
			TypeName:  s.typeName,
			Payload:   string(payload),
			FetchedAt: now,
		})
	}

	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert export rows: %w", err)
	}
	return nil
}

// Close is a no-op; the database connection belongs to the caller.
func (s *SQLSink) Close() error {
	return nil
}

// OpenSQLite opens (creating if needed) a SQLite database ready for
// use with NewSQLSink. Convenience for the common local-export case;
// any bun dialect works for the sink itself.
func OpenSQLite(path string) (*bun.DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}
