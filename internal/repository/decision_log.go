// Package repository provides concrete adapters for the domain's external
// collaborator interfaces: the ClickHouse decision log and the Kafka
// decision sink.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
)

const (
	decisionsTable = "validation_decisions"
	outcomesTable  = "signal_outcomes"
)

var schemaStatements = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		signal_id    String,
		symbol       LowCardinality(String),
		approved     UInt8,
		queued       UInt8,
		errored      UInt8,
		confidence   Float64,
		score        Float64,
		reason       String,
		factors      String,
		validated_at DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(validated_at)
	ORDER BY (symbol, validated_at)`, decisionsTable),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		signal_id   String,
		symbol      LowCardinality(String),
		successful  UInt8,
		pnl         Float64,
		recorded_at DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(recorded_at)
	ORDER BY (symbol, recorded_at)`, outcomesTable),
}

// ClickHouseDecisionLog implements repository.DecisionStore over ClickHouse.
type ClickHouseDecisionLog struct {
	db *sql.DB
}

// NewClickHouseDecisionLog creates a decision log over a pooled connection.
func NewClickHouseDecisionLog(db *sql.DB) *ClickHouseDecisionLog {
	return &ClickHouseDecisionLog{db: db}
}

// Init creates the log tables when missing.
func (s *ClickHouseDecisionLog) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("decision log schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseDecisionLog) StoreDecision(ctx context.Context, d *models.Decision) error {
	factors := "{}"
	if len(d.Factors) > 0 {
		b, err := json.Marshal(d.Factors)
		if err != nil {
			return fmt.Errorf("marshal factors: %w", err)
		}
		factors = string(b)
	}

	q := fmt.Sprintf(`INSERT INTO %s
		(signal_id, symbol, approved, queued, errored, confidence, score, reason, factors, validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, decisionsTable)
	_, err := s.db.ExecContext(ctx, q,
		d.SignalID,
		d.Symbol,
		boolToUInt8(d.Approved),
		boolToUInt8(d.Queued),
		boolToUInt8(d.Errored),
		d.Confidence,
		d.Score,
		d.Reason,
		factors,
		d.ValidatedAt,
	)
	return err
}

func (s *ClickHouseDecisionLog) StoreOutcome(ctx context.Context, o *models.Outcome) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(signal_id, symbol, successful, pnl, recorded_at)
		VALUES (?, ?, ?, ?, ?)`, outcomesTable)
	_, err := s.db.ExecContext(ctx, q,
		o.SignalID,
		o.Symbol,
		boolToUInt8(o.Successful),
		o.PnL,
		o.RecordedAt,
	)
	return err
}

func (s *ClickHouseDecisionLog) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection pool is owned by pkg/clickhouse.
func (s *ClickHouseDecisionLog) Close() error {
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ repository.DecisionStore = (*ClickHouseDecisionLog)(nil)
