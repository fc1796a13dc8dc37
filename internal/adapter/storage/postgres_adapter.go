package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/port"
)

const (
	pgErrUniqueViolation      = "23505"
	pgErrCheckViolation       = "23514"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrLockNotAvailable     = "55P03"
)

// PostgresAdapter provides Postgres-backed persistence for activities and enrollments.
type PostgresAdapter struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

// NewPostgresAdapter constructs a PostgresAdapter. lockWait is set as a transaction-local
// lock_timeout on every unit; zero keeps the server default.
func NewPostgresAdapter(pool *pgxpool.Pool, lockWait time.Duration) *PostgresAdapter {
	return &PostgresAdapter{pool: pool, lockWait: lockWait}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("postgres.sql")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classifyPostgres(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if p.lockWait > 0 {
		timeout := fmt.Sprintf("%dms", p.lockWait.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
			return classifyPostgres(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPostgres(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetForUpdate(ctx context.Context, activityID string) (*domain.SeatCounter, error) {
	var c domain.SeatCounter
	err := t.tx.QueryRow(ctx, `
		SELECT id, capacity, seats_left
		FROM activities WHERE id = $1 FOR UPDATE`, activityID,
	).Scan(&c.ActivityID, &c.Capacity, &c.SeatsLeft)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("select activity for update: %w", err))
	}
	return &c, nil
}

func (t *pgTx) AdjustSeats(ctx context.Context, activityID string, delta int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE activities
		SET seats_left = seats_left + $1, updated_at = now()
		WHERE id = $2 AND seats_left + $1 BETWEEN 0 AND capacity`,
		delta, activityID,
	)
	if err != nil {
		if pgCode(err) == pgErrCheckViolation {
			return port.ErrSeatBounds
		}
		return classifyPostgres(fmt.Errorf("update seats: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return port.ErrSeatBounds
	}
	return nil
}

func (t *pgTx) Insert(ctx context.Context, e domain.Enrollment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO enrollments (id, user_id, activity_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.ActivityID, e.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == pgErrUniqueViolation {
			return port.ErrUniqueViolation
		}
		return classifyPostgres(fmt.Errorf("insert enrollment: %w", err))
	}
	return nil
}

func (t *pgTx) FindOwned(ctx context.Context, enrollmentID, userID string) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, activity_id, created_at
		FROM enrollments WHERE id = $1 AND user_id = $2`, enrollmentID, userID,
	).Scan(&e.ID, &e.UserID, &e.ActivityID, &e.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("query enrollment: %w", err))
	}
	return &e, nil
}

func (t *pgTx) DeleteIfOwned(ctx context.Context, enrollmentID, userID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM enrollments WHERE id = $1 AND user_id = $2`, enrollmentID, userID)
	if err != nil {
		return false, classifyPostgres(fmt.Errorf("delete enrollment: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresAdapter) CreateActivity(ctx context.Context, a domain.Activity) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO activities (id, title, description, modality, difficulty, location, price,
			starts_at, ends_at, capacity, seats_left, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.Title, a.Description, a.Modality, a.Difficulty, a.Location, a.Price,
		a.StartsAt, a.EndsAt, a.Capacity, a.SeatsLeft, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == pgErrCheckViolation {
			return port.ErrSeatBounds
		}
		return classifyPostgres(fmt.Errorf("insert activity: %w", err))
	}
	return nil
}

const pgActivityColumns = `id, title, description, modality, difficulty, location, price::float8,
	starts_at, ends_at, capacity, seats_left, created_at, updated_at`

func (p *PostgresAdapter) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgActivityColumns+`
		FROM activities WHERE id = $1`, activityID)

	a, err := scanPostgresActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("query activity: %w", err))
	}
	return a, nil
}

func (p *PostgresAdapter) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgActivityColumns+`
		FROM activities
		ORDER BY starts_at ASC NULLS LAST, id ASC`)
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("query activities: %w", err))
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanPostgresActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) FindByUser(ctx context.Context, userID string) ([]domain.EnrollmentView, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT e.id, e.activity_id, a.title, a.location, a.starts_at, a.ends_at, a.price::float8
		FROM enrollments e
		JOIN activities a ON a.id = e.activity_id
		WHERE e.user_id = $1
		ORDER BY e.created_at ASC, e.id ASC`, userID)
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("query enrollments: %w", err))
	}
	defer rows.Close()

	var out []domain.EnrollmentView
	for rows.Next() {
		var v domain.EnrollmentView
		if err := rows.Scan(&v.EnrollmentID, &v.ActivityID, &v.Title, &v.Location, &v.StartsAt, &v.EndsAt, &v.Price); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		v.StartsAt = utcPtr(v.StartsAt)
		v.EndsAt = utcPtr(v.EndsAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanPostgresActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Modality, &a.Difficulty, &a.Location, &a.Price,
		&a.StartsAt, &a.EndsAt, &a.Capacity, &a.SeatsLeft, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.StartsAt = utcPtr(a.StartsAt)
	a.EndsAt = utcPtr(a.EndsAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classifyPostgres marks serialization failures, deadlocks, lock timeouts and
// connection-level timeouts as transient.
func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgErrSerializationFailure, pgErrDeadlockDetected, pgErrLockNotAvailable:
		return domain.Transient(err)
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
