package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"walink/pkg/interfaces"
	"walink/pkg/types"
)

// Manager is the sqlite-backed event journal. Every gateway push event and
// dispatcher outcome is appended to session_events with a strictly
// increasing seq, and the last known record per tenant is upserted into
// session_snapshots so a restarted coordinator can seed its store.
//
// All writes funnel through a single goroutine; SQLite performs poorly
// under concurrent writers even in WAL mode. Reads go straight to the
// connection pool.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	log          zerolog.Logger
}

// writeOperation is one queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Config holds journal database settings.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	WriteTimeout    time.Duration
}

// NewManager opens the journal database, applies pending migrations and
// starts the writer goroutine.
func NewManager(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply journal migrations: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		log:          logger.With().Str("component", "journal").Logger(),
	}

	m.wg.Add(1)
	go m.writeLoop(cfg.WriteTimeout)

	return m, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop(timeout time.Duration) {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Msg("journal write failed, retrying once")
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("journal write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug().Msg("journal write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrJournalClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrJournalClosed
	}
}

// Append records one journal entry. Seq is assigned by sqlite, ID and
// ReceivedAt are filled in here when absent.
func (m *Manager) Append(ctx context.Context, entry interfaces.JournalEntry) error {
	if !types.IsValidTenantID(entry.TenantID) {
		return types.ErrInvalidTenantID
	}
	if entry.Kind == "" {
		return ErrEmptyKind
	}

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	receivedAt := entry.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO session_events (id, tenant_id, kind, detail, received_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, id, entry.TenantID, entry.Kind, entry.Detail, receivedAt)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
		return nil
	})
}

// SaveSnapshots upserts the last known record for each tenant.
func (m *Manager) SaveSnapshots(ctx context.Context, records []types.SessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin snapshot transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		query := `
			INSERT INTO session_snapshots (tenant_id, school_name, session_name, status, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id) DO UPDATE SET
				school_name = excluded.school_name,
				session_name = excluded.session_name,
				status = excluded.status,
				updated_at = excluded.updated_at
		`
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, query,
				rec.TenantID, rec.SchoolName, rec.SessionName, string(rec.Status), rec.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert snapshot for %s: %w", rec.TenantID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit snapshots: %w", err)
		}
		return nil
	})
}

// LoadSnapshots returns the persisted records from the previous run.
func (m *Manager) LoadSnapshots(ctx context.Context) ([]types.SessionRecord, error) {
	query := `
		SELECT tenant_id, school_name, session_name, status, updated_at
		FROM session_snapshots
		ORDER BY school_name, tenant_id
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.SessionRecord
	for rows.Next() {
		var rec types.SessionRecord
		var status string
		if err := rows.Scan(&rec.TenantID, &rec.SchoolName, &rec.SessionName, &status, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.Status = types.NormalizeStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return records, nil
}

// TenantEvents returns the most recent entries for one tenant, newest
// first, at most limit rows.
func (m *Manager) TenantEvents(ctx context.Context, tenantID string, limit int) ([]interfaces.JournalEntry, error) {
	if !types.IsValidTenantID(tenantID) {
		return nil, types.ErrInvalidTenantID
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT seq, id, tenant_id, kind, detail, received_at
		FROM session_events
		WHERE tenant_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := m.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []interfaces.JournalEntry
	for rows.Next() {
		var e interfaces.JournalEntry
		if err := rows.Scan(&e.Seq, &e.ID, &e.TenantID, &e.Kind, &e.Detail, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}

	return entries, nil
}

// Close stops the writer goroutine and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal database: %w", err)
	}
	return nil
}
