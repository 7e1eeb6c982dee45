package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the direct path to the system of record. Inserts are
// keyed by sale id with ON CONFLICT DO NOTHING, so redelivering a sale
// whose acknowledgment was lost is harmless.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgres(ctx context.Context, connString string, l *slog.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("no response from postgres: %w", err)
	}

	return &Postgres{pool: pool, logger: l}, nil
}

// EnsureSchema creates the sales table when it does not exist yet.
// Idempotent; both the terminal (direct mode) and the hub call it on
// startup.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sales (
			id          TEXT PRIMARY KEY,
			terminal_id TEXT NOT NULL,
			items       JSONB NOT NULL,
			total       NUMERIC(12, 2) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure sales schema: %w", err)
	}
	return nil
}

// Insert writes one sale. A duplicate id is acknowledged as success:
// the record is already in the system of record.
func (p *Postgres) Insert(ctx context.Context, sale models.SaleRecord) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return fmt.Errorf("failed to serialize sale items: %w", err)
	}

	query := `
		INSERT INTO sales (id, terminal_id, items, total, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query, sale.ID, sale.TerminalID, items, sale.Total, sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		p.logger.Debug("Sale already present in system of record", "sale_id", sale.ID)
	}
	return nil
}

// Exists reports whether a sale id is already in the system of record.
func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sale existence: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
