// Package sqlstore is a SQL-backed persistence.Port: it detects
// SQLite vs PostgreSQL from the connection string and speaks
// database/sql against whichever driver is registered
// (modernc.org/sqlite or github.com/lib/pq), across a two-table
// layout (saga_context, saga_step).
//
// The storage layer does not know how to reconstruct live, executable
// Step values from persisted rows — that requires binding back to the
// concrete step implementations a deployment wires up (inventory
// clients, payment gateways, ...), which is outside this package's
// concern, since step implementations are specified only by
// interface. Callers supply a Rehydrator that does that binding.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
)

// Rehydrator rebuilds live Step values for a saga's forward and
// compensation arrays from their persisted Log projections.
type Rehydrator interface {
	Rehydrate(logs []step.Log) (forward []step.Step, compensation []step.Step)
}

// Store is a database/sql-backed persistence.Port.
type Store struct {
	db     *sql.DB
	dbType string // "sqlite" or "postgres"
	rehy   Rehydrator
}

// New opens connectionString, detecting the driver from its shape: a
// postgres://-prefixed string means PostgreSQL, anything else is
// treated as a SQLite file path.
func New(connectionString string, rehy Rehydrator) (*Store, error) {
	var db *sql.DB
	var dbType, driverName string
	var err error

	if strings.HasPrefix(connectionString, "postgres://") || strings.HasPrefix(connectionString, "postgresql://") {
		dbType = "postgres"
		driverName = "postgres"
	} else {
		dbType = "sqlite"
		driverName = "sqlite"
	}
	db, err = sql.Open(driverName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}

	s := &Store{db: db, dbType: dbType, rehy: rehy}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	var sagaTable, stepTable string
	if s.dbType == "postgres" {
		sagaTable = `
		CREATE TABLE IF NOT EXISTS saga_context (
			order_id TEXT PRIMARY KEY,
			order_no TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			timeout_ms BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			current_step INTEGER NOT NULL,
			current_compensation_step INTEGER NOT NULL,
			processed_step_ids TEXT NOT NULL,
			last_result TEXT NOT NULL,
			metadata TEXT NOT NULL,
			compensation_allowed BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_saga_context_status ON saga_context(status);
		CREATE INDEX IF NOT EXISTS idx_saga_context_updated_at ON saga_context(updated_at);
		`
		stepTable = `
		CREATE TABLE IF NOT EXISTS saga_step (
			step_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			index_no INTEGER NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			error_code TEXT,
			error_message TEXT,
			external_ref_id TEXT,
			metadata TEXT,
			is_compensation BOOLEAN NOT NULL,
			compensation_of TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			sent_at TIMESTAMP,
			received_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_saga_step_order_id ON saga_step(order_id);
		`
	} else {
		sagaTable = `
		CREATE TABLE IF NOT EXISTS saga_context (
			order_id TEXT PRIMARY KEY,
			order_no TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			timeout_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			current_compensation_step INTEGER NOT NULL,
			processed_step_ids TEXT NOT NULL,
			last_result TEXT NOT NULL,
			metadata TEXT NOT NULL,
			compensation_allowed INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_saga_context_status ON saga_context(status);
		CREATE INDEX IF NOT EXISTS idx_saga_context_updated_at ON saga_context(updated_at);
		`
		stepTable = `
		CREATE TABLE IF NOT EXISTS saga_step (
			step_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			index_no INTEGER NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			error_code TEXT,
			error_message TEXT,
			external_ref_id TEXT,
			metadata TEXT,
			is_compensation INTEGER NOT NULL,
			compensation_of TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			sent_at TEXT,
			received_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_saga_step_order_id ON saga_step(order_id);
		`
	}

	if _, err := s.db.Exec(sagaTable); err != nil {
		return err
	}
	if _, err := s.db.Exec(stepTable); err != nil {
		return err
	}
	return nil
}

func (s *Store) placeholder(n int) string {
	if s.dbType == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Create inserts sc. OrderNo-level business deduplication is the
// DedupHook's job, run before the saga is ever built here (see
// engine.Engine.Start); this only has to guard against the OrderID
// collision the documented Port contract promises, plus whatever the
// order_no UNIQUE constraint catches as a last-resort race backstop.
func (s *Store) Create(ctx context.Context, sc *sagacontext.SagaContext) (bool, error) {
	processed, _ := json.Marshal(sc.ProcessedStepIDs)
	lastResult, _ := json.Marshal(sc.LastResult)
	metadata, _ := json.Marshal(sc.Metadata)

	query := fmt.Sprintf(`INSERT INTO saga_context
		(order_id, order_no, customer_id, status, timeout_ms, created_at, updated_at, current_step, current_compensation_step, processed_step_ids, last_result, metadata, compensation_allowed)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10),
		s.placeholder(11), s.placeholder(12), s.placeholder(13))

	_, err := s.db.ExecContext(ctx, query,
		sc.OrderID, sc.OrderNo, sc.CustomerID, string(sc.Status), sc.Timeout.Milliseconds(),
		sc.CreatedAt, sc.UpdatedAt, sc.CurrentStep, sc.CurrentCompensationStep,
		string(processed), string(lastResult), string(metadata), sc.CompensationAllowed)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpdateStatus(ctx context.Context, sc *sagacontext.SagaContext, prevUpdatedAt time.Time) (bool, error) {
	processed, _ := json.Marshal(sc.ProcessedStepIDs)
	lastResult, _ := json.Marshal(sc.LastResult)
	metadata, _ := json.Marshal(sc.Metadata)

	query := fmt.Sprintf(`UPDATE saga_context SET
		status=%s, timeout_ms=%s, updated_at=%s, current_step=%s, current_compensation_step=%s,
		processed_step_ids=%s, last_result=%s, metadata=%s
		WHERE order_id=%s AND updated_at=%s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10))

	res, err := s.db.ExecContext(ctx, query,
		string(sc.Status), sc.Timeout.Milliseconds(), sc.UpdatedAt, sc.CurrentStep, sc.CurrentCompensationStep,
		string(processed), string(lastResult), string(metadata), sc.OrderID, prevUpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) scanSaga(row interface {
	Scan(dest ...any) error
}) (*sagacontext.SagaContext, error) {
	var (
		orderID, orderNo, customerID, status string
		timeoutMs                            int64
		createdAt, updatedAt                  time.Time
		currentStep, currentCompStep          int
		processedJSON, lastResultJSON, metaJSON string
		compensationAllowed                  bool
	)
	if err := row.Scan(&orderID, &orderNo, &customerID, &status, &timeoutMs, &createdAt, &updatedAt,
		&currentStep, &currentCompStep, &processedJSON, &lastResultJSON, &metaJSON, &compensationAllowed); err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.ErrNotFound
		}
		return nil, err
	}

	sc := &sagacontext.SagaContext{
		OrderID:                 orderID,
		OrderNo:                 orderNo,
		CustomerID:              customerID,
		Status:                  sagastatus.Status(status),
		Timeout:                 time.Duration(timeoutMs) * time.Millisecond,
		CreatedAt:               createdAt,
		UpdatedAt:               updatedAt,
		CurrentStep:             currentStep,
		CurrentCompensationStep: currentCompStep,
		CompensationAllowed:     compensationAllowed,
	}
	_ = json.Unmarshal([]byte(processedJSON), &sc.ProcessedStepIDs)
	_ = json.Unmarshal([]byte(lastResultJSON), &sc.LastResult)
	_ = json.Unmarshal([]byte(metaJSON), &sc.Metadata)

	logs, err := s.LoadSteps(context.Background(), orderID)
	if err != nil {
		return nil, err
	}
	if s.rehy != nil {
		sc.ForwardSteps, sc.CompensationSteps = s.rehy.Rehydrate(logs)
	}
	return sc, nil
}

func (s *Store) FindByID(ctx context.Context, orderID string) (*sagacontext.SagaContext, error) {
	query := fmt.Sprintf(`SELECT order_id, order_no, customer_id, status, timeout_ms, created_at, updated_at,
		current_step, current_compensation_step, processed_step_ids, last_result, metadata, compensation_allowed
		FROM saga_context WHERE order_id=%s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, orderID)
	return s.scanSaga(row)
}

func (s *Store) FindByOrderNo(ctx context.Context, orderNo string) (*sagacontext.SagaContext, error) {
	query := fmt.Sprintf(`SELECT order_id, order_no, customer_id, status, timeout_ms, created_at, updated_at,
		current_step, current_compensation_step, processed_step_ids, last_result, metadata, compensation_allowed
		FROM saga_context WHERE order_no=%s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, orderNo)
	return s.scanSaga(row)
}

func (s *Store) ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM saga_context WHERE order_no=%s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, orderNo)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SaveSteps(ctx context.Context, logs []step.Log) (bool, error) {
	for _, l := range logs {
		meta, _ := json.Marshal(l.Metadata)
		query := fmt.Sprintf(`INSERT INTO saga_step
			(step_id, order_id, index_no, action, status, error_code, error_message, external_ref_id, metadata, is_compensation, compensation_of, created_at, updated_at, sent_at, received_at)
			VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
			s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10),
			s.placeholder(11), s.placeholder(12), s.placeholder(13), s.placeholder(14), s.placeholder(15))
		_, err := s.db.ExecContext(ctx, query,
			l.StepID, l.OrderID, l.Index, string(l.Action), string(l.Status), l.ErrorCode, l.ErrorMessage,
			l.ExternalRefID, string(meta), l.IsCompensation, l.CompensationOf, l.CreatedAt, l.UpdatedAt, l.SentAt, l.ReceivedAt)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) LoadSteps(ctx context.Context, orderID string) ([]step.Log, error) {
	query := fmt.Sprintf(`SELECT step_id, order_id, index_no, action, status, error_code, error_message, external_ref_id, metadata, is_compensation, compensation_of, created_at, updated_at, sent_at, received_at
		FROM saga_step WHERE order_id=%s ORDER BY index_no ASC`, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []step.Log
	for rows.Next() {
		var l step.Log
		var action, metaJSON string
		var sentAt, receivedAt sql.NullTime
		if err := rows.Scan(&l.StepID, &l.OrderID, &l.Index, &action, &l.Status, &l.ErrorCode, &l.ErrorMessage,
			&l.ExternalRefID, &metaJSON, &l.IsCompensation, &l.CompensationOf, &l.CreatedAt, &l.UpdatedAt, &sentAt, &receivedAt); err != nil {
			return nil, err
		}
		l.Action = step.Action(action)
		_ = json.Unmarshal([]byte(metaJSON), &l.Metadata)
		if sentAt.Valid {
			l.SentAt = &sentAt.Time
		}
		if receivedAt.Valid {
			l.ReceivedAt = &receivedAt.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) FindStuckSagas(ctx context.Context, statuses []sagastatus.Status, olderThan time.Time, limit int) ([]*sagacontext.SagaContext, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for i, st := range statuses {
		placeholders[i] = s.placeholder(i + 1)
		args = append(args, string(st))
	}
	args = append(args, olderThan)

	query := fmt.Sprintf(`SELECT order_id FROM saga_context WHERE status IN (%s) AND updated_at < %s ORDER BY updated_at ASC LIMIT %d`,
		strings.Join(placeholders, ","), s.placeholder(len(statuses)+1), limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]*sagacontext.SagaContext, 0, len(ids))
	for _, id := range ids {
		sc, err := s.FindByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

// TryLock/ReleaseLock use a dedicated lock table so that concurrent
// engine processes pointed at the same database serialize on a saga,
// not just goroutines within one process (unlike memstore's in-memory
// mutex map, this one is meant to span processes).
func (s *Store) TryLock(ctx context.Context, orderID string) (bool, error) {
	var query string
	if s.dbType == "postgres" {
		query = `INSERT INTO saga_lock (order_id, locked_at) VALUES ($1, $2) ON CONFLICT (order_id) DO NOTHING`
	} else {
		query = `INSERT OR IGNORE INTO saga_lock (order_id, locked_at) VALUES (?, ?)`
	}
	if err := s.ensureLockTable(ctx); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, query, orderID, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ReleaseLock(ctx context.Context, orderID string) error {
	if err := s.ensureLockTable(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM saga_lock WHERE order_id=%s`, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, orderID)
	return err
}

func (s *Store) ensureLockTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS saga_lock (order_id TEXT PRIMARY KEY, locked_at TIMESTAMP NOT NULL)`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

var _ persistence.Port = (*Store)(nil)
