// Package postgres persists the score ledger in PostgreSQL: an append-only
// entries table plus a per-entity current projection, updated together in one
// transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"riskgraph/internal/ledger/models"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
	platformtx "riskgraph/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createEntriesTable, createEntriesIndex, createCurrentTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger schema: %w", err)
		}
	}
	return nil
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	entity_id UUID NOT NULL,
	kind TEXT NOT NULL,
	justification JSONB,
	override JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
)`

const createEntriesIndex = `
CREATE INDEX IF NOT EXISTS ledger_entries_tenant_entity_idx
	ON ledger_entries (tenant_id, entity_id, recorded_at DESC)`

const createCurrentTable = `
CREATE TABLE IF NOT EXISTS ledger_current (
	tenant_id UUID NOT NULL,
	entity_id UUID NOT NULL,
	justification JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, entity_id)
)`

// Append writes all entries and folds them into the projection in one
// transaction. Entries are batch-inserted via unnest. When the context
// carries an ambient transaction, Append joins it instead of opening its own
// and leaves commit/rollback to the owner.
func (s *Store) Append(ctx context.Context, tenantID id.TenantID, entries []*models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, joined := platformtx.From(ctx)
	if !joined {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin ledger append: %w", err)
		}
		defer tx.Rollback()
	}

	var err error
	ids := make([]uuid.UUID, len(entries))
	entityIDs := make([]uuid.UUID, len(entries))
	kinds := make([]string, len(entries))
	justifications := make([][]byte, len(entries))
	overrides := make([][]byte, len(entries))
	recordedAts := make([]time.Time, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
		entityIDs[i] = uuid.UUID(entry.EntityID)
		kinds[i] = string(entry.Kind)
		recordedAts[i] = entry.RecordedAt
		if entry.Justification != nil {
			justifications[i], err = json.Marshal(entry.Justification)
			if err != nil {
				return fmt.Errorf("encode justification: %w", err)
			}
		}
		if entry.Override != nil {
			overrides[i], err = json.Marshal(entry.Override)
			if err != nil {
				return fmt.Errorf("encode override: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, entity_id, kind, justification, override, recorded_at)
		SELECT unnest($1::uuid[]), $2, unnest($3::uuid[]), unnest($4::text[]),
		       unnest($5::jsonb[]), unnest($6::jsonb[]), unnest($7::timestamptz[])`,
		pq.Array(ids), uuid.UUID(tenantID), pq.Array(entityIDs), pq.Array(kinds),
		pq.Array(justifications), pq.Array(overrides), pq.Array(recordedAts))
	if err != nil {
		return fmt.Errorf("append ledger entries: %w", err)
	}

	for _, entry := range entries {
		if err := applyToProjection(ctx, tx, tenantID, entry); err != nil {
			return err
		}
	}

	if joined {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger append: %w", err)
	}
	return nil
}

func applyToProjection(ctx context.Context, tx *sql.Tx, tenantID id.TenantID, entry *models.Entry) error {
	switch entry.Kind {
	case models.EntryJustificationComputed:
		just := *entry.Justification
		just.Override = nil
		raw, err := json.Marshal(&just)
		if err != nil {
			return fmt.Errorf("encode projection: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_current (tenant_id, entity_id, justification, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, entity_id) DO UPDATE SET
				justification = EXCLUDED.justification,
				updated_at = EXCLUDED.updated_at`,
			uuid.UUID(tenantID), uuid.UUID(entry.EntityID), raw, entry.RecordedAt)
		if err != nil {
			return fmt.Errorf("project computed entry: %w", err)
		}
	case models.EntryOverrideApplied:
		raw, err := json.Marshal(entry.Override)
		if err != nil {
			return fmt.Errorf("encode override projection: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE ledger_current
			SET justification = jsonb_set(justification, '{override_info}', $3::jsonb), updated_at = $4
			WHERE tenant_id = $1 AND entity_id = $2`,
			uuid.UUID(tenantID), uuid.UUID(entry.EntityID), raw, entry.RecordedAt)
		if err != nil {
			return fmt.Errorf("project override entry: %w", err)
		}
	case models.EntryOverrideCleared:
		_, err := tx.ExecContext(ctx, `
			UPDATE ledger_current
			SET justification = justification - 'override_info', updated_at = $3
			WHERE tenant_id = $1 AND entity_id = $2`,
			uuid.UUID(tenantID), uuid.UUID(entry.EntityID), entry.RecordedAt)
		if err != nil {
			return fmt.Errorf("project override-cleared entry: %w", err)
		}
	}
	return nil
}

func (s *Store) Current(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Current, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, justification, updated_at
		FROM ledger_current
		WHERE tenant_id = $1 AND entity_id = $2`,
		uuid.UUID(tenantID), uuid.UUID(entityID))
	cur, err := scanCurrent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current score: %w", err)
	}
	return cur, nil
}

func (s *Store) ListCurrent(ctx context.Context, tenantID id.TenantID) ([]*models.Current, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, justification, updated_at
		FROM ledger_current
		WHERE tenant_id = $1`,
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list current scores: %w", err)
	}
	defer rows.Close()

	var out []*models.Current
	for rows.Next() {
		cur, err := scanCurrent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan current score: %w", err)
		}
		out = append(out, cur)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, tenantID id.TenantID, entityID id.EntityID, limit int) ([]*models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, kind, justification, override, recorded_at
		FROM ledger_entries
		WHERE tenant_id = $1 AND entity_id = $2
		ORDER BY recorded_at DESC
		LIMIT $3`,
		uuid.UUID(tenantID), uuid.UUID(entityID), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows, tenantID)
}

func (s *Store) HistorySince(ctx context.Context, tenantID id.TenantID, since time.Time) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, kind, justification, override, recorded_at
		FROM ledger_entries
		WHERE tenant_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC`,
		uuid.UUID(tenantID), since)
	if err != nil {
		return nil, fmt.Errorf("ledger history since: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows, tenantID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCurrent(row rowScanner) (*models.Current, error) {
	var (
		entityID uuid.UUID
		raw      []byte
		cur      models.Current
	)
	if err := row.Scan(&entityID, &raw, &cur.UpdatedAt); err != nil {
		return nil, err
	}
	cur.EntityID = id.EntityID(entityID)
	cur.Justification = &scoringmodels.Justification{}
	if err := json.Unmarshal(raw, cur.Justification); err != nil {
		return nil, fmt.Errorf("decode justification: %w", err)
	}
	return &cur, nil
}

func scanEntries(rows *sql.Rows, tenantID id.TenantID) ([]*models.Entry, error) {
	var out []*models.Entry
	for rows.Next() {
		var (
			entry         models.Entry
			entityID      uuid.UUID
			justification []byte
			override      []byte
		)
		if err := rows.Scan(&entry.ID, &entityID, &entry.Kind, &justification, &override, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.TenantID = tenantID
		entry.EntityID = id.EntityID(entityID)
		if len(justification) > 0 {
			entry.Justification = &scoringmodels.Justification{}
			if err := json.Unmarshal(justification, entry.Justification); err != nil {
				return nil, fmt.Errorf("decode entry justification: %w", err)
			}
		}
		if len(override) > 0 {
			entry.Override = &scoringmodels.Override{}
			if err := json.Unmarshal(override, entry.Override); err != nil {
				return nil, fmt.Errorf("decode entry override: %w", err)
			}
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
