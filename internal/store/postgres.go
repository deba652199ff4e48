package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// importLockKey identifies the import job in pg_try_advisory_lock.
const importLockKey int64 = 7_305_118

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id   BIGINT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id   BIGINT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS work_items (
	id              BIGINT PRIMARY KEY,
	project_id      BIGINT NOT NULL REFERENCES projects(id),
	assignee_id     BIGINT REFERENCES users(id),
	subject         TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	start_date      DATE,
	due_date        DATE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	percentage_done INTEGER NOT NULL DEFAULT 0,
	goal_period     TEXT
);
CREATE INDEX IF NOT EXISTS work_items_project_goal_idx ON work_items (project_id, goal_period);
CREATE TABLE IF NOT EXISTS activities (
	id           BIGSERIAL PRIMARY KEY,
	work_item_id BIGINT NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
	from_status  TEXT,
	to_status    TEXT,
	comment      TEXT,
	at           TIMESTAMPTZ NOT NULL,
	user_id      BIGINT REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS activities_work_item_idx ON activities (work_item_id, at);
`

const workItemColumns = `id, project_id, assignee_id, subject, description, type, status,
	start_date, due_date, created_at, updated_at, percentage_done, goal_period`

// PostgresStore persists to PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool

	lockMu   sync.Mutex
	lockConn *pgxpool.Conn // Session that holds the advisory lock
}

// OpenPostgres connects, pings and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires DB_DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL store")
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) ProjectIDs(ctx context.Context) (map[int64]bool, error) {
	return p.idSet(ctx, `SELECT id FROM projects`)
}

func (p *PostgresStore) UserIDs(ctx context.Context) (map[int64]bool, error) {
	return p.idSet(ctx, `SELECT id FROM users`)
}

func (p *PostgresStore) idSet(ctx context.Context, q string, args ...any) (map[int64]bool, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (p *PostgresStore) InsertProjects(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pr := range projects {
		batch.Queue(`INSERT INTO projects(id, name) VALUES($1,$2) ON CONFLICT (id) DO NOTHING`, pr.ID, pr.Name)
	}
	return p.inTx(ctx, batch)
}

func (p *PostgresStore) InsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(`INSERT INTO users(id, name) VALUES($1,$2) ON CONFLICT (id) DO NOTHING`, u.ID, u.Name)
	}
	return p.inTx(ctx, batch)
}

func (p *PostgresStore) ExistingWorkItemIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return map[int64]bool{}, nil
	}
	return p.idSet(ctx, `SELECT id FROM work_items WHERE id = ANY($1)`, ids)
}

func (p *PostgresStore) UpsertWorkItems(ctx context.Context, updates, inserts []WorkItem) error {
	if len(updates)+len(inserts) == 0 {
		return nil
	}
	const updateQ = `UPDATE work_items SET
		project_id=$2, assignee_id=$3, subject=$4, description=$5, type=$6, status=$7,
		start_date=$8, due_date=$9, created_at=$10, updated_at=$11, percentage_done=$12, goal_period=$13
		WHERE id=$1`
	const insertQ = `INSERT INTO work_items(` + workItemColumns + `)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	batch := &pgx.Batch{}
	for _, w := range updates {
		batch.Queue(updateQ, workItemArgs(w)...)
	}
	for _, w := range inserts {
		batch.Queue(insertQ, workItemArgs(w)...)
	}
	return p.inTx(ctx, batch)
}

func workItemArgs(w WorkItem) []any {
	return []any{w.ID, w.ProjectID, w.AssigneeID, w.Subject, w.Description, w.Type, w.Status,
		w.StartDate, w.DueDate, w.CreatedAt, w.UpdatedAt, w.PercentageDone, w.GoalPeriod}
}

func (p *PostgresStore) InsertActivities(ctx context.Context, activities []Activity) error {
	if len(activities) == 0 {
		return nil
	}
	const q = `INSERT INTO activities(work_item_id, from_status, to_status, comment, at, user_id)
		VALUES($1,$2,$3,$4,$5,$6)`
	batch := &pgx.Batch{}
	for _, a := range activities {
		batch.Queue(q, a.WorkItemID, a.FromStatus, a.ToStatus, a.Comment, a.Timestamp, a.UserID)
	}
	return p.inTx(ctx, batch)
}

// inTx sends batch inside a single transaction.
func (p *PostgresStore) inTx(ctx context.Context, batch *pgx.Batch) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
}

func (p *PostgresStore) Projects(ctx context.Context) ([]Project, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Project, error) {
		var pr Project
		err := row.Scan(&pr.ID, &pr.Name)
		return pr, err
	})
}

func (p *PostgresStore) Project(ctx context.Context, id int64) (Project, error) {
	var pr Project
	err := p.pool.QueryRow(ctx, `SELECT id, name FROM projects WHERE id=$1`, id).Scan(&pr.ID, &pr.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return pr, err
}

func (p *PostgresStore) UsersByID(ctx context.Context, ids []int64) (map[int64]User, error) {
	out := make(map[int64]User)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (p *PostgresStore) WorkItems(ctx context.Context, filter WorkItemFilter) ([]WorkItem, error) {
	q := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE project_id = $1
		  AND ($2::BIGINT IS NULL OR assignee_id = $2)
		  AND ($3 = '' OR goal_period = $3)
		ORDER BY id`
	rows, err := p.pool.Query(ctx, q, filter.ProjectID, filter.AssigneeID, filter.GoalPeriod)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkItem, error) {
		var w WorkItem
		err := row.Scan(&w.ID, &w.ProjectID, &w.AssigneeID, &w.Subject, &w.Description, &w.Type, &w.Status,
			&w.StartDate, &w.DueDate, &w.CreatedAt, &w.UpdatedAt, &w.PercentageDone, &w.GoalPeriod)
		return w, err
	})
}

func (p *PostgresStore) ActivitiesByWorkItem(ctx context.Context, ids []int64) (map[int64][]Activity, error) {
	out := make(map[int64][]Activity)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, work_item_id, from_status, to_status, comment, at, user_id
		FROM activities WHERE work_item_id = ANY($1) ORDER BY work_item_id, at, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.WorkItemID, &a.FromStatus, &a.ToStatus, &a.Comment, &a.Timestamp, &a.UserID); err != nil {
			return nil, err
		}
		out[a.WorkItemID] = append(out[a.WorkItemID], a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GoalPeriods(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT goal_period FROM work_items
		WHERE project_id = $1 AND goal_period IS NOT NULL`, projectID)
	if err != nil {
		return nil, err
	}
	periods, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	// Sorted here so ordering is bytewise, independent of the database collation.
	sort.Strings(periods)
	if periods == nil {
		periods = []string{}
	}
	return periods, nil
}

func (p *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := p.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM projects),
		(SELECT COUNT(*) FROM work_items),
		(SELECT COUNT(*) FROM activities)`).Scan(&c.Users, &c.Projects, &c.WorkItems, &c.Activities)
	return c, err
}

// TryLock takes a session-level advisory lock on a dedicated pooled
// connection, which is held until Unlock.
func (p *PostgresStore) TryLock(ctx context.Context) (bool, error) {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()

	if p.lockConn != nil {
		return false, nil
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, importLockKey).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	p.lockConn = conn
	return true, nil
}

func (p *PostgresStore) Unlock(ctx context.Context) error {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()

	if p.lockConn == nil {
		return nil
	}
	defer func() {
		p.lockConn.Release()
		p.lockConn = nil
	}()

	var ok bool
	if err := p.lockConn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, importLockKey).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errors.New("advisory unlock returned false")
	}
	return nil
}

// Flush is a no-op; every write is committed immediately.
func (p *PostgresStore) Flush(_ context.Context) error { return nil }

func (p *PostgresStore) Close() error {
	_ = p.Unlock(context.Background())
	p.pool.Close()
	return nil
}
