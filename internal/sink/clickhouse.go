package sink

import (
	"context"
	"fmt"

	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alerts (
    AlertID      String,
    Timestamp    DateTime,
    Severity     String,
    AttackType   String,
    SrcIP        String,
    DstIP        String,
    Confidence   Float64,
    Phase        String,
    RiskScore    Float64,
    Blocked      UInt8,
    BlockOutcome String,
    Description  String,
    AuditIndex   UInt64,
    AuditHash    String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Severity, Timestamp);
`

// ClickHouseWriter persists alert records for offline investigation. It
// implements model.RecordWriter and is fed by the hub, so a slow database
// backs up only its own mailbox.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and ensures the alerts table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createAlertsTable); err != nil {
		return nil, fmt.Errorf("failed to create alerts table: %w", err)
	}
	logger.Infof("sink: clickhouse ready at %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// WriteRecord inserts one alert row.
func (w *ClickHouseWriter) WriteRecord(rec model.AlertRecord) error {
	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO alerts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	blocked := uint8(0)
	if rec.Alert.Blocked {
		blocked = 1
	}
	err = batch.Append(
		rec.Alert.ID,
		rec.Alert.Timestamp,
		string(rec.Alert.Severity),
		string(rec.Alert.AttackType),
		rec.Alert.SrcIP,
		rec.Alert.DstIP,
		rec.Alert.Confidence,
		string(rec.Alert.Phase),
		rec.Alert.RiskScore,
		blocked,
		string(rec.Alert.BlockOutcome),
		rec.Alert.Description,
		rec.Audit.Index,
		rec.Audit.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to append alert to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
