package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"evstage/internal/model"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS events (
	id          VARCHAR(64)  NOT NULL PRIMARY KEY,
	title       TEXT         NOT NULL,
	category    VARCHAR(255) NOT NULL DEFAULT '',
	start_at    DATETIME(6)  NULL,
	end_at      DATETIME(6)  NULL,
	location    TEXT         NOT NULL,
	description TEXT         NOT NULL,
	source      VARCHAR(255) NOT NULL DEFAULT '',
	recurrence  TEXT         NOT NULL,
	created_at  DATETIME(6)  NOT NULL,
	INDEX idx_events_source (source)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const eventColumns = "id, title, category, start_at, end_at, location, description, source, recurrence, created_at"

// MySQL stores events in a single table. Times are stored in UTC.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects using a go-sql-driver DSN, forcing parseTime and UTC,
// pings and creates the events table if needed.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating events table: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) List(ctx context.Context) ([]model.Event, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (m *MySQL) Get(ctx context.Context, id string) (model.Event, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

func (m *MySQL) Put(ctx context.Context, ev model.Event) error {
	_, err := m.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), category = VALUES(category),
			start_at = VALUES(start_at), end_at = VALUES(end_at),
			location = VALUES(location), description = VALUES(description),
			source = VALUES(source), recurrence = VALUES(recurrence)`,
		eventArgs(ev)...)
	return err
}

func (m *MySQL) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := m.db.ExecContext(ctx, "DELETE FROM events WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (m *MySQL) ReplaceSource(ctx context.Context, source string, events []model.Event) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE source = ?", source)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if len(events) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO events ("+eventColumns+") VALUES ("+placeholders(10)+")")
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for _, ev := range stamped(source, events) {
			if _, err := stmt.ExecContext(ctx, eventArgs(ev)...); err != nil {
				return 0, fmt.Errorf("inserting event %s: %w", ev.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var (
		ev         model.Event
		start, end sql.NullTime
	)
	err := r.Scan(&ev.ID, &ev.Title, &ev.Category, &start, &end,
		&ev.Location, &ev.Description, &ev.Source, &ev.Recurrence, &ev.CreatedAt)
	if err != nil {
		return model.Event{}, err
	}
	if start.Valid {
		ev.Start = model.TimePtr(start.Time)
	}
	if end.Valid {
		ev.End = model.TimePtr(end.Time)
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}

func eventArgs(ev model.Event) []any {
	return []any{
		ev.ID, ev.Title, ev.Category, nullTime(ev.Start), nullTime(ev.End),
		ev.Location, ev.Description, ev.Source, ev.Recurrence, ev.CreatedAt.UTC(),
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
