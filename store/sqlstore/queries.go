package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

type sqlTx struct {
	q DBTX
	d Dialect
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *sqlTx) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(ctx, t.d.rebind(q), args...)
}

func (t *sqlTx) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.q.QueryContext(ctx, t.d.rebind(q), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return t.q.QueryRowContext(ctx, t.d.rebind(q), args...)
}

// insert maps unique violations to models.ErrAlreadyExists.
func (t *sqlTx) insert(ctx context.Context, q string, args ...any) error {
	if _, err := t.exec(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return dbError(err)
	}
	return nil
}

// update maps zero affected rows to models.ErrNotFound.
func (t *sqlTx) update(ctx context.Context, q string, args ...any) error {
	res, err := t.exec(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return dbError(err)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// Users

const userColumns = `id, wallet_address, name, email, credit_score, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.WalletAddress, &u.Name, &u.Email, &u.CreditScore, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *sqlTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return u, nil
}

func (t *sqlTx) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	u, err := scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = ?`, wallet))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return u, nil
}

func (t *sqlTx) CreateUser(ctx context.Context, u *models.User) error {
	return t.insert(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.WalletAddress, u.Name, u.Email, u.CreditScore, u.CreatedAt, u.UpdatedAt)
}

func (t *sqlTx) UpdateUser(ctx context.Context, u *models.User) error {
	return t.update(ctx, `UPDATE users SET wallet_address = ?, name = ?, email = ?, credit_score = ?, updated_at = ? WHERE id = ?`,
		u.WalletAddress, u.Name, u.Email, u.CreditScore, u.UpdatedAt, u.ID)
}

func (t *sqlTx) AdjustCreditScore(ctx context.Context, userID string, delta int, at time.Time) (int, error) {
	var score int
	err := t.queryRow(ctx, `UPDATE users SET credit_score = credit_score + ?, updated_at = ? WHERE id = ? RETURNING credit_score`,
		delta, at, userID).Scan(&score)
	if err != nil {
		return 0, notFoundOr(err)
	}
	return score, nil
}

// Events

const eventColumns = `id, title, description, location, date_time, max_attendees, organizer_id, status, blockchain_event_id, created_at`

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e       models.Event
		chainID sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartTime, &e.MaxAttendees,
		&e.OrganizerID, &e.Status, &chainID, &e.CreatedAt); err != nil {
		return nil, err
	}
	if chainID.Valid {
		id := chainID.Int64
		e.ChainEventID = &id
	}
	return &e, nil
}

func (t *sqlTx) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, err := scanEvent(t.queryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return e, nil
}

func (t *sqlTx) CreateEvent(ctx context.Context, e *models.Event) error {
	return t.insert(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Location, e.StartTime, e.MaxAttendees, e.OrganizerID, e.Status,
		nullInt64(e.ChainEventID), e.CreatedAt)
}

func (t *sqlTx) UpdateEvent(ctx context.Context, e *models.Event) error {
	return t.update(ctx, `UPDATE events SET title = ?, description = ?, location = ?, date_time = ?, max_attendees = ?,
		status = ?, blockchain_event_id = ? WHERE id = ?`,
		e.Title, e.Description, e.Location, e.StartTime, e.MaxAttendees, e.Status, nullInt64(e.ChainEventID), e.ID)
}

func (t *sqlTx) ListEvents(ctx context.Context, f store.EventFilter) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if f.OrganizerID != "" {
		q += ` WHERE organizer_id = ?`
		args = append(args, f.OrganizerID)
	}
	q += ` ORDER BY date_time, id`

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

// Participations

const participationColumns = `id, event_id, user_id, registration_time, check_in_time, check_out_time, attendance_status, punctuality_score`

func scanParticipation(row scanner) (*models.Participation, error) {
	var (
		p                 models.Participation
		checkIn, checkOut sql.NullTime
		status            string
	)
	if err := row.Scan(&p.ID, &p.EventID, &p.UserID, &p.RegistrationTime, &checkIn, &checkOut, &status, &p.PunctualityScore); err != nil {
		return nil, err
	}
	p.CheckInTime = timePtr(checkIn)
	p.CheckOutTime = timePtr(checkOut)
	p.AttendanceStatus = models.AttendanceStatus(status)
	return &p, nil
}

func (t *sqlTx) GetParticipation(ctx context.Context, eventID, userID string) (*models.Participation, error) {
	p, err := scanParticipation(t.queryRow(ctx,
		`SELECT `+participationColumns+` FROM event_participants WHERE event_id = ? AND user_id = ?`, eventID, userID))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return p, nil
}

func (t *sqlTx) CreateParticipation(ctx context.Context, p *models.Participation) error {
	return t.insert(ctx, `INSERT INTO event_participants (`+participationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.UserID, p.RegistrationTime, nullTime(p.CheckInTime), nullTime(p.CheckOutTime),
		string(p.AttendanceStatus), p.PunctualityScore)
}

func (t *sqlTx) UpdateParticipation(ctx context.Context, p *models.Participation) error {
	return t.update(ctx, `UPDATE event_participants SET check_in_time = ?, check_out_time = ?, attendance_status = ?,
		punctuality_score = ? WHERE event_id = ? AND user_id = ?`,
		nullTime(p.CheckInTime), nullTime(p.CheckOutTime), string(p.AttendanceStatus), p.PunctualityScore, p.EventID, p.UserID)
}

func (t *sqlTx) CheckInParticipation(ctx context.Context, p *models.Participation) error {
	err := t.update(ctx, `UPDATE event_participants SET check_in_time = ?, attendance_status = ?, punctuality_score = ?
		WHERE event_id = ? AND user_id = ? AND check_in_time IS NULL AND attendance_status NOT IN (?, ?)`,
		nullTime(p.CheckInTime), string(models.AttendanceCheckedIn), p.PunctualityScore,
		p.EventID, p.UserID, string(models.AttendanceCheckedIn), string(models.AttendanceCheckedOut))
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if _, gerr := t.GetParticipation(ctx, p.EventID, p.UserID); gerr != nil {
		return gerr
	}
	return models.ErrAlreadyCheckedIn
}

func (t *sqlTx) ListParticipations(ctx context.Context, f store.ParticipationFilter) ([]models.Participation, error) {
	var (
		conds []string
		args  []any
	)
	if f.EventID != "" {
		conds = append(conds, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "attendance_status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + participationColumns + ` FROM event_participants`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY registration_time, id`

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]models.Participation, 0)
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

// Credit log

const creditColumns = `id, user_id, event_id, action, points_change, reason, transaction_hash, created_at`

func (t *sqlTx) AppendCreditLog(ctx context.Context, e *models.CreditLogEntry) error {
	return t.insert(ctx, `INSERT INTO credit_log (`+creditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, nullString(e.EventID), e.Action, e.PointsChange, e.Reason, e.TransactionHash, e.CreatedAt)
}

func (t *sqlTx) ListCreditLog(ctx context.Context, userID string) ([]models.CreditLogEntry, error) {
	rows, err := t.query(ctx, `SELECT `+creditColumns+` FROM credit_log WHERE user_id = ? ORDER BY created_at, `+t.d.seq, userID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]models.CreditLogEntry, 0)
	for rows.Next() {
		var (
			e       models.CreditLogEntry
			eventID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &eventID, &e.Action, &e.PointsChange, &e.Reason, &e.TransactionHash, &e.CreatedAt); err != nil {
			return nil, dbError(err)
		}
		if eventID.Valid {
			id := eventID.String
			e.EventID = &id
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

// Feedback

const feedbackColumns = `id, event_id, reviewer_id, reviewee_id, reviewee_type, rating, comment, created_at`

func (t *sqlTx) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	return t.insert(ctx, `INSERT INTO feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EventID, f.ReviewerID, f.RevieweeID, f.RevieweeType, f.Rating, f.Comment, f.CreatedAt)
}

func (t *sqlTx) ListFeedback(ctx context.Context, eventID string) ([]models.Feedback, error) {
	q := `SELECT ` + feedbackColumns + ` FROM feedback`
	var args []any
	if eventID != "" {
		q += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	q += ` ORDER BY created_at, ` + t.d.seq

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]models.Feedback, 0)
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.EventID, &f.ReviewerID, &f.RevieweeID, &f.RevieweeType, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, dbError(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}
