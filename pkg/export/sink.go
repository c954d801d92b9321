// Package export provides durable sinks for streamed full fetches:
// CSV files and relational tables via bun. Sinks receive batches in
// cursor order from pkg/pagination.
package export

import (
	"context"

	"github.com/avachon/bubble-data-client/pkg/bubble"
)

// Sink consumes record batches and persists them. WriteBatch is called
// once per page, in cursor order. Close flushes and releases resources;
// data is not guaranteed durable until Close returns.
type Sink interface {
	WriteBatch(ctx context.Context, records []bubble.Record) error
	Close() error
}
