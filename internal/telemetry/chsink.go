package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/configtypes"
	"github.com/bombadil/exerciser/internal/runner"
)

const pingTimeout = 5 * time.Second

// ClickHouseSink batches run events into a ClickHouse table for
// cross-run analytics (coverage growth curves, property-violation
// rates over time). The corpus declares
// github.com/ClickHouse/clickhouse-go/v2 as a direct dependency but no
// retrieved teacher file exercises it, so this sink follows the
// library's standard documented usage (clickhouse.Open + batch
// Prepare/Append/Send) rather than any specific teacher source.
type ClickHouseSink struct {
	conn   clickhouse.Conn
	table  string
	logger *zap.Logger
}

// NewClickHouseSink dials ClickHouse and verifies connectivity.
func NewClickHouseSink(cfg *configtypes.ClickHouseConfig, logger *zap.Logger) (*ClickHouseSink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telemetry: clickhouse config is required")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("telemetry: pinging clickhouse: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "bombadil_run_events"
	}

	return &ClickHouseSink{conn: conn, table: table, logger: logger}, nil
}

// WriteBatch appends a batch of run events as one ClickHouse insert.
func (s *ClickHouseSink) WriteBatch(ctx context.Context, runID string, events []runner.RunEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (run_id, ts, kind, coverage_edges, new_edges, dispatched_kind)", s.table))
	if err != nil {
		return fmt.Errorf("telemetry: preparing clickhouse batch: %w", err)
	}

	for _, ev := range events {
		dispatched := ""
		if ev.DispatchedNext != nil {
			dispatched = string(ev.DispatchedNext.Kind)
		}
		if err := batch.Append(runID, ev.Timestamp, string(ev.Kind), ev.CoverageEdges, ev.NewEdges, dispatched); err != nil {
			return fmt.Errorf("telemetry: appending clickhouse row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("telemetry: sending clickhouse batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
