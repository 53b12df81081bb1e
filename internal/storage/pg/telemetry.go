package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taoyao-code/framelink/internal/sink"
)

// Execer *pgxpool.Pool 与 pgx.Tx 均满足
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS telemetry_frames (
		id          UUID PRIMARY KEY,
		channel     TEXT NOT NULL,
		schema_name TEXT NOT NULL,
		remote      TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		fields      JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_frames_channel_time
		ON telemetry_frames (channel, received_at DESC)`,
}

const insertTelemetry = `INSERT INTO telemetry_frames (id, channel, schema_name, remote, received_at, fields)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

// EnsureSchema 建表（幂等）
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure telemetry schema: %w", err)
		}
	}
	return nil
}

// TelemetrySink 将遥测逐帧写入 telemetry_frames
type TelemetrySink struct {
	db Execer
}

func NewTelemetrySink(db Execer) *TelemetrySink {
	return &TelemetrySink{db: db}
}

func (s *TelemetrySink) Name() string { return "postgres" }

func (s *TelemetrySink) Publish(ctx context.Context, t sink.Telemetry) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if _, err := s.db.Exec(ctx, insertTelemetry,
		t.ID.String(), t.Channel, t.Schema, t.Remote, t.ReceivedAt, string(fields)); err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}
