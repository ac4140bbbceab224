package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
	"ticketchain-backend/store/storetest"
)

func newSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newSQLite)
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:", logging.Nop())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_FileSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/nested/ledger.db"
	s, err := OpenSQLite(context.Background(), path, logging.Nop())
	require.NoError(t, err)
	u := storetest.NewUser("0xfile")
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(context.Background(), path, logging.Nop())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUserByWallet(ctx, "0xfile")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		return nil
	}))
}

func TestSQLite_MigrationsLogThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	s, err := OpenSQLite(context.Background(), ":memory:", logging.New(&buf, "info"))
	require.NoError(t, err)
	defer s.Close()
	assert.Contains(t, buf.String(), "00001_init.sql")
	assert.Contains(t, buf.String(), `"component":"migrate"`)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE b = ? AND c = ?`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE b = $1 AND c = $2`, Postgres.rebind(q))
}

func TestMigrate_Error(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string) error {
		assert.Equal(t, "postgres", dir)
		return errors.New("boom")
	}

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = New(db, Postgres).Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate postgres: boom")
}

func newPostgresMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, Postgres), mock
}

func TestPostgres_GetUserByWallet(t *testing.T) {
	s, mock := newPostgresMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "wallet_address", "name", "email", "credit_score", "created_at", "updated_at"}).
		AddRow("u-1", "0xabc", "alice", "", 105, now, now)
	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE wallet_address = \$1$`).
		WithArgs("0xabc").
		WillReturnRows(rows)

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUserByWallet(ctx, "0xabc")
		require.NoError(t, err)
		assert.Equal(t, "u-1", u.ID)
		assert.Equal(t, 105, u.CreditScore)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetUser_NotFound(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, "missing")
		return err
	})
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}

func TestPostgres_CreateUser_Duplicate(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`^INSERT INTO users \(.+\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)$`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, storetest.NewUser("0xdup"))
	})
	assert.True(t, errors.Is(err, models.ErrAlreadyExists), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DBErrorIsWrapped(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET credit_score = credit_score \+ \$1, updated_at = \$2 WHERE id = \$3 RETURNING credit_score`).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustCreditScore(ctx, "u-1", 5, time.Now())
		return err
	})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CheckInAlreadyCheckedIn(t *testing.T) {
	s, mock := newPostgresMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE event_participants SET check_in_time = \$1, attendance_status = \$2, punctuality_score = \$3\s+WHERE event_id = \$4 AND user_id = \$5 AND check_in_time IS NULL AND attendance_status NOT IN \(\$6, \$7\)$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM event_participants WHERE event_id = \$1 AND user_id = \$2`).
		WithArgs("e-1", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "user_id", "registration_time", "check_in_time", "check_out_time", "attendance_status", "punctuality_score"}).
			AddRow("p-1", "e-1", "u-1", now, now, nil, "checked_in", 10))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CheckInParticipation(ctx, &models.Participation{EventID: "e-1", UserID: "u-1", CheckInTime: &now, PunctualityScore: 5})
	})
	assert.True(t, errors.Is(err, models.ErrAlreadyCheckedIn), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListParticipationsFilters(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectQuery(`(?s)FROM event_participants WHERE event_id = \$1 AND attendance_status = \$2 ORDER BY registration_time, id$`).
		WithArgs("e-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "user_id", "registration_time", "check_in_time", "check_out_time", "attendance_status", "punctuality_score"}))

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ListParticipations(ctx, store.ParticipationFilter{EventID: "e-1", Status: models.AttendancePending})
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_log`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.AppendCreditLog(ctx, &models.CreditLogEntry{ID: "c-1", UserID: "u-1", Action: models.ActionCheckIn, PointsChange: 10, CreatedAt: time.Now()})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
