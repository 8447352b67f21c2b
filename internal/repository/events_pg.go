package repository

import (
	"context"
	"encoding/json"

	"github.com/curvebond/curvegate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
)

type PostgresEventRepo struct {
	db *sqlx.DB
}

func NewPostgresEventRepo(db *sqlx.DB) *PostgresEventRepo {
	repo := &PostgresEventRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresEventRepo) Insert(ctx context.Context, event *model.Event) error {
	if event == nil {
		return nil
	}
	fieldsJSON, _ := json.Marshal(event.Fields)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_events (id, event_type, collateral, fields, event_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Type), event.Collateral.Hex(), fieldsJSON, event.Timestamp)
	return err
}

func (r *PostgresEventRepo) List(ctx context.Context, limit int) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, event_type, collateral, fields, event_ts
		FROM market_events
		ORDER BY event_ts DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.Event, 0, limit)
	for rows.Next() {
		var (
			event      model.Event
			eventType  string
			collateral string
			fieldsJSON []byte
		)
		if err := rows.Scan(&event.ID, &eventType, &collateral, &fieldsJSON, &event.Timestamp); err != nil {
			return nil, err
		}
		event.Type = model.EventType(eventType)
		event.Collateral = common.HexToAddress(collateral)
		if len(fieldsJSON) > 0 {
			_ = json.Unmarshal(fieldsJSON, &event.Fields)
		}
		records = append(records, &event)
	}
	return records, rows.Err()
}

func (r *PostgresEventRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS market_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			collateral TEXT NOT NULL,
			fields JSONB,
			event_ts BIGINT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_market_events_ts ON market_events(event_ts DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_market_events_collateral ON market_events(collateral, event_ts DESC)`)
	return nil
}
