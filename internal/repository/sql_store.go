package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/resume-scanner/constants"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
)

const scanTaskTable = "scan_task"

const scanTaskDDL = `CREATE TABLE IF NOT EXISTS scan_task (
	id            VARCHAR(36) PRIMARY KEY,
	state         VARCHAR(16) NOT NULL,
	result        TEXT NULL,
	error_message TEXT NULL,
	created_at    BIGINT NOT NULL,
	updated_at    BIGINT NOT NULL
)`

// SQLStore is a TaskStatusStore shared across processes through Postgres or SQLite.
// Timestamps are stored as unix milliseconds so both dialects read them back alike.
type SQLStore struct {
	drv     *entsql.Driver
	dialect string
	log     *slog.Logger
	now     func() time.Time
}

var _ TaskStatusStore = (*SQLStore)(nil)

func NewSQLStore(db *DB, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}
	return &SQLStore{drv: db.Driver, dialect: db.Dialect, log: log, now: time.Now}
}

// Migrate creates the scan_task table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, scanTaskDDL, []any{}, nil); err != nil {
		return fmt.Errorf("create %s: %w", scanTaskTable, err)
	}
	if err := s.drv.Exec(ctx, `CREATE INDEX IF NOT EXISTS scan_task_state_idx ON scan_task (state, updated_at)`, []any{}, nil); err != nil {
		return fmt.Errorf("create %s index: %w", scanTaskTable, err)
	}
	s.log.Info("status store schema ready", "table", scanTaskTable, "dialect", s.dialect)
	return nil
}

func (s *SQLStore) RecordState(ctx context.Context, handle entity.TaskHandle, state constants.TaskState) error {
	now := s.now().UnixMilli()
	if state == constants.TaskStatePending {
		q, args := entsql.Dialect(s.dialect).
			Insert(scanTaskTable).
			Columns("id", "state", "created_at", "updated_at").
			Values(string(handle), string(state), now, now).
			OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
			Query()
		var res stdsql.Result
		if err := s.drv.Exec(ctx, q, args, &res); err != nil {
			s.log.Error("scan_task create failed", "task_id", handle, "err", err)
			return fmt.Errorf("create task %s: %w", handle, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("create task %s: %w", handle, err)
		} else if n == 0 {
			cur, err := s.Get(ctx, handle)
			if err != nil {
				return err
			}
			return transitionError(handle, cur.State, state)
		}
		return nil
	}

	upd := entsql.Dialect(s.dialect).
		Update(scanTaskTable).
		Set("state", string(state)).
		Set("updated_at", now)
	return s.transition(ctx, handle, state, upd)
}

func (s *SQLStore) RecordResult(ctx context.Context, handle entity.TaskHandle, state constants.TaskState, result *entity.ScanResult, errorInfo string) error {
	if err := checkTerminal(handle, state); err != nil {
		return err
	}
	upd := entsql.Dialect(s.dialect).
		Update(scanTaskTable).
		Set("state", string(state)).
		Set("updated_at", s.now().UnixMilli())
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result for task %s: %w", handle, err)
		}
		upd.Set("result", string(b))
	}
	if errorInfo != "" {
		upd.Set("error_message", errorInfo)
	}
	return s.transition(ctx, handle, state, upd)
}

// transition applies upd only while the row is in a state that may move to next.
func (s *SQLStore) transition(ctx context.Context, handle entity.TaskHandle, next constants.TaskState, upd *entsql.UpdateBuilder) error {
	preds := next.Predecessors()
	from := make([]any, 0, len(preds))
	for _, p := range preds {
		from = append(from, string(p))
	}
	q, args := upd.Where(entsql.And(
		entsql.EQ("id", string(handle)),
		entsql.In("state", from...),
	)).Query()

	var res stdsql.Result
	if err := s.drv.Exec(ctx, q, args, &res); err != nil {
		s.log.Error("scan_task update failed", "task_id", handle, "state", next, "err", err)
		return fmt.Errorf("update task %s: %w", handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", handle, err)
	}
	if n > 0 {
		return nil
	}

	cur, err := s.Get(ctx, handle)
	if err != nil {
		return err
	}
	return transitionError(handle, cur.State, next)
}

func (s *SQLStore) Get(ctx context.Context, handle entity.TaskHandle) (*entity.TaskStatusRecord, error) {
	q, args := entsql.Dialect(s.dialect).
		Select("id", "state", "result", "error_message", "created_at", "updated_at").
		From(entsql.Table(scanTaskTable)).
		Where(entsql.EQ("id", string(handle))).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("get task %s: %w", handle, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get task %s: %w", handle, err)
		}
		return nil, notFound(handle)
	}

	var (
		id, state          string
		result, errMessage stdsql.NullString
		created, updated   int64
	)
	if err := rows.Scan(&id, &state, &result, &errMessage, &created, &updated); err != nil {
		return nil, fmt.Errorf("scan task %s: %w", handle, err)
	}

	st, ok := constants.ParseTaskState(state)
	if !ok {
		return nil, fmt.Errorf("task %s: unknown stored state %q", handle, state)
	}
	rec := &entity.TaskStatusRecord{
		Handle:    entity.TaskHandle(id),
		State:     st,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}
	if result.Valid {
		var r entity.ScanResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode result for task %s: %w", handle, err)
		}
		rec.Result = &r
	}
	if errMessage.Valid {
		msg := errMessage.String
		rec.ErrorInfo = &msg
	}
	return rec, nil
}
