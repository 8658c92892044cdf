package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tsudo/taskrelay/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			failure_reason TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) CreateInstance(ctx context.Context, inst *api.Instance) error {
	input, output, err := encodePayloads(inst)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, status, input, output, failure_reason, attempt, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		inst.ID,
		string(inst.Status),
		input,
		output,
		inst.FailureReason,
		inst.Attempt,
		inst.CreatedAt.UnixNano(),
		unixNanoOrZero(inst.CompletedAt),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceExists
	}

	return nil
}

func (s *SQLiteInstanceStore) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, input, output, failure_reason, attempt, created_at, completed_at
		FROM instances
		WHERE id = ?`,
		id,
	)

	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	return inst, nil
}

func (s *SQLiteInstanceStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.Instance, error) {
	query := `
		SELECT id, status, input, output, failure_reason, attempt, created_at, completed_at
		FROM instances`
	var args []any

	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.Instance

	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *SQLiteInstanceStore) Transition(ctx context.Context, from api.Status, inst *api.Instance) error {
	input, output, err := encodePayloads(inst)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET status = ?, input = ?, output = ?, failure_reason = ?, attempt = ?, created_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(inst.Status),
		input,
		output,
		inst.FailureReason,
		inst.Attempt,
		inst.CreatedAt.UnixNano(),
		unixNanoOrZero(inst.CompletedAt),
		inst.ID,
		string(from),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.conflictOrNotFound(ctx, inst.ID)
	}

	return nil
}

func (s *SQLiteInstanceStore) RecordAttempt(ctx context.Context, id string, attempt int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET attempt = ?
		WHERE id = ? AND status = ?`,
		attempt,
		id,
		string(api.StatusRunning),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.conflictOrNotFound(ctx, id)
	}

	return nil
}

// conflictOrNotFound disambiguates a zero-row conditional update.
func (s *SQLiteInstanceStore) conflictOrNotFound(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInstanceNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func encodePayloads(inst *api.Instance) (input, output []byte, err error) {
	input, err = EncodeValue(inst.Input)
	if err != nil {
		return nil, nil, err
	}
	output, err = EncodeValue(inst.Output)
	if err != nil {
		return nil, nil, err
	}
	return input, output, nil
}

func scanInstance(scan func(dest ...any) error) (*api.Instance, error) {
	var (
		inst        api.Instance
		statusStr   string
		input       []byte
		output      []byte
		createdAt   int64
		completedAt int64
	)

	if err := scan(&inst.ID, &statusStr, &input, &output, &inst.FailureReason, &inst.Attempt, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.CreatedAt = time.Unix(0, createdAt)
	if completedAt != 0 {
		inst.CompletedAt = time.Unix(0, completedAt)
	}

	inVal, err := DecodeValue(input)
	if err != nil {
		return nil, err
	}
	inst.Input = inVal

	outVal, err := DecodeValue(output)
	if err != nil {
		return nil, err
	}
	inst.Output = outVal

	return &inst, nil
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
