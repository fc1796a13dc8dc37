package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/port"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrCheckConstraint = 3819
	mysqlMinLockWaitSeconds = 1
)

type MySQLAdapter struct {
	db       *sql.DB
	lockWait time.Duration
}

// NewMySQLAdapter wraps an open pool. lockWait is applied per unit as
// innodb_lock_wait_timeout (whole seconds, at least 1); zero keeps the server default.
func NewMySQLAdapter(db *sql.DB, lockWait time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, lockWait: lockWait}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("mysql.sql")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// NormalizeMySQLDSN forces parseTime so DATETIME columns scan into time.Time, and
// defaults the connection location to UTC.
func NormalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

func (m *MySQLAdapter) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return classifyMySQL(fmt.Errorf("acquire conn: %w", err))
	}
	defer conn.Close()

	if m.lockWait > 0 {
		secs := int(math.Ceil(m.lockWait.Seconds()))
		if secs < mysqlMinLockWaitSeconds {
			secs = mysqlMinLockWaitSeconds
		}
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
			return classifyMySQL(fmt.Errorf("set lock wait timeout: %w", err))
		}
		// runs after the tx ends and before the conn goes back to the pool
		defer restoreLockWait(conn)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return classifyMySQL(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyMySQL(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// restoreLockWait puts the session back on the server default. A conn that cannot be
// reset is discarded instead of being reused with the unit's timeout.
func restoreLockWait(conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := conn.ExecContext(ctx, "SET SESSION innodb_lock_wait_timeout = DEFAULT"); err != nil {
		conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) GetForUpdate(ctx context.Context, activityID string) (*domain.SeatCounter, error) {
	var c domain.SeatCounter
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, capacity, seats_left
		FROM activities WHERE id = ? FOR UPDATE`, activityID,
	).Scan(&c.ActivityID, &c.Capacity, &c.SeatsLeft)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMySQL(fmt.Errorf("select activity for update: %w", err))
	}
	return &c, nil
}

func (t *mysqlTx) AdjustSeats(ctx context.Context, activityID string, delta int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE activities
		SET seats_left = seats_left + ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND seats_left + ? BETWEEN 0 AND capacity`,
		delta, activityID, delta,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrCheckConstraint {
			return port.ErrSeatBounds
		}
		return classifyMySQL(fmt.Errorf("update seats: %w", err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrSeatBounds
	}
	return nil
}

func (t *mysqlTx) Insert(ctx context.Context, e domain.Enrollment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO enrollments (id, user_id, activity_id, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.UserID, e.ActivityID, e.CreatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			return port.ErrUniqueViolation
		}
		return classifyMySQL(fmt.Errorf("insert enrollment: %w", err))
	}
	return nil
}

func (t *mysqlTx) FindOwned(ctx context.Context, enrollmentID, userID string) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, activity_id, created_at
		FROM enrollments WHERE id = ? AND user_id = ?`, enrollmentID, userID,
	).Scan(&e.ID, &e.UserID, &e.ActivityID, &e.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMySQL(fmt.Errorf("query enrollment: %w", err))
	}
	return &e, nil
}

func (t *mysqlTx) DeleteIfOwned(ctx context.Context, enrollmentID, userID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM enrollments WHERE id = ? AND user_id = ?`, enrollmentID, userID)
	if err != nil {
		return false, classifyMySQL(fmt.Errorf("delete enrollment: %w", err))
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) CreateActivity(ctx context.Context, a domain.Activity) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO activities (id, title, description, modality, difficulty, location, price,
			starts_at, ends_at, capacity, seats_left, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.Modality, a.Difficulty, a.Location, a.Price,
		nullTime(a.StartsAt), nullTime(a.EndsAt), a.Capacity, a.SeatsLeft, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return classifyMySQL(fmt.Errorf("insert activity: %w", err))
	}
	return nil
}

const mysqlActivityColumns = `id, title, description, modality, difficulty, location, price,
	starts_at, ends_at, capacity, seats_left, created_at, updated_at`

func (m *MySQLAdapter) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+mysqlActivityColumns+`
		FROM activities WHERE id = ?`, activityID)

	a, err := scanMySQLActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyMySQL(fmt.Errorf("query activity: %w", err))
	}
	return a, nil
}

func (m *MySQLAdapter) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+mysqlActivityColumns+`
		FROM activities
		ORDER BY (starts_at IS NULL) ASC, starts_at ASC, id ASC`)
	if err != nil {
		return nil, classifyMySQL(fmt.Errorf("query activities: %w", err))
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanMySQLActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) FindByUser(ctx context.Context, userID string) ([]domain.EnrollmentView, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT e.id, e.activity_id, a.title, a.location, a.starts_at, a.ends_at, a.price
		FROM enrollments e
		JOIN activities a ON a.id = e.activity_id
		WHERE e.user_id = ?
		ORDER BY e.created_at ASC, e.id ASC`, userID)
	if err != nil {
		return nil, classifyMySQL(fmt.Errorf("query enrollments: %w", err))
	}
	defer rows.Close()

	var out []domain.EnrollmentView
	for rows.Next() {
		var v domain.EnrollmentView
		var startsAt, endsAt sql.NullTime
		if err := rows.Scan(&v.EnrollmentID, &v.ActivityID, &v.Title, &v.Location, &startsAt, &endsAt, &v.Price); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		v.StartsAt = timePtr(startsAt)
		v.EndsAt = timePtr(endsAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMySQLActivity(row rowScanner) (*domain.Activity, error) {
	var a domain.Activity
	var startsAt, endsAt sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Modality, &a.Difficulty, &a.Location, &a.Price,
		&startsAt, &endsAt, &a.Capacity, &a.SeatsLeft, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.StartsAt = timePtr(startsAt)
	a.EndsAt = timePtr(endsAt)
	return &a, nil
}

// classifyMySQL marks lock-wait timeouts, deadlocks and dropped connections as transient.
func classifyMySQL(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return domain.Transient(err)
		}
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
