package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names from db/schema.sql that carry domain meaning.
const (
	constraintSlotActive     = "appointments_slot_active_uq"
	constraintRequesterDay   = "appointments_requester_day_active_uq"
	constraintLedgerPK       = "slot_ledgers_pkey"
	uniqueViolation          = "23505"
	defaultNotificationLimit = 50
)

// querier is what both the pool and an open transaction offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var (
	_ Store             = (*PgRepository)(nil)
	_ Directory         = (*PgRepository)(nil)
	_ NotificationStore = (*PgRepository)(nil)
	_ Tx                = (*pgTx)(nil)
)

// Helpers

const appointmentColumns = `
	id, requester_id, provider_id,
	requester_name, requester_section, requester_contact, provider_name,
	date, time, reason, description, status,
	gate_awaiting, gate_verified_by, gate_decision,
	transfer_target_id, transfer_target_accepted, transfer_requester_accepted,
	reschedule_date, reschedule_time,
	version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a              Appointment
		status         string
		verifiedBy     *string
		decision       *string
		targetID       *uuid.UUID
		targetOK       bool
		requesterOK    bool
		rescheduleDate *string
		rescheduleTime *string
	)

	err := row.Scan(
		&a.ID,
		&a.RequesterID,
		&a.ProviderID,
		&a.RequesterName,
		&a.RequesterSection,
		&a.RequesterContact,
		&a.ProviderName,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Description,
		&status,
		&a.Gate.AwaitingDecision,
		&verifiedBy,
		&decision,
		&targetID,
		&targetOK,
		&requesterOK,
		&rescheduleDate,
		&rescheduleTime,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	a.Gate.VerifiedBy = verifiedBy
	if decision != nil {
		d := EntryDecision(*decision)
		a.Gate.Decision = &d
	}
	if targetID != nil {
		a.Transfer = &TransferState{
			TargetProviderID:  *targetID,
			TargetAccepted:    targetOK,
			RequesterAccepted: requesterOK,
		}
	}
	if rescheduleDate != nil && rescheduleTime != nil {
		a.Reschedule = &RescheduleProposal{Date: *rescheduleDate, Time: *rescheduleTime}
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// subStateArgs flattens the optional sub-states into nullable columns.
func subStateArgs(a *Appointment) (decision *string, targetID *uuid.UUID, targetOK, requesterOK bool, rDate, rTime *string) {
	if a.Gate.Decision != nil {
		d := string(*a.Gate.Decision)
		decision = &d
	}
	if a.Transfer != nil {
		id := a.Transfer.TargetProviderID
		targetID = &id
		targetOK = a.Transfer.TargetAccepted
		requesterOK = a.Transfer.RequesterAccepted
	}
	if a.Reschedule != nil {
		d, t := a.Reschedule.Date, a.Reschedule.Time
		rDate, rTime = &d, &t
	}
	return
}

func scanLedgerDay(row pgx.Row) (*LedgerDay, error) {
	var (
		d   LedgerDay
		raw []byte
	)
	err := row.Scan(&d.ProviderID, &d.Date, &raw, &d.Version, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &d.Slots); err != nil {
		return nil, fmt.Errorf("decode ledger slots: %w", err)
	}
	return &d, nil
}

// mapWriteErr turns unique violations on the active-slot indexes into the
// domain conflicts they stand for.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintSlotActive:
		return ErrSlotTaken
	case constraintRequesterDay:
		return ErrDailyLimit
	case constraintLedgerPK:
		return ErrVersionConflict
	}
	return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Store

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, r.pool, id, false)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.RequesterID != nil {
		add("requester_id = $%d", *f.RequesterID)
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.Date != nil {
		add("date = $%d", *f.Date)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}

	sql := "SELECT " + appointmentColumns + " FROM appointments"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(" ORDER BY date, time, created_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*LedgerDay, error) {
	return getLedgerDay(ctx, r.pool, providerID, date, false)
}

func (r *PgRepository) ListLedgerDays(ctx context.Context, fromDate string) ([]LedgerKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, date
		FROM slot_ledgers
		WHERE date >= $1
		ORDER BY date, provider_id
	`, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []LedgerKey
	for rows.Next() {
		var k LedgerKey
		if err := rows.Scan(&k.ProviderID, &k.Date); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func getAppointment(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	sql := "SELECT " + appointmentColumns + " FROM appointments WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	return scanAppointment(q.QueryRow(ctx, sql, id))
}

func getLedgerDay(ctx context.Context, q querier, providerID uuid.UUID, date string, forUpdate bool) (*LedgerDay, error) {
	sql := `
		SELECT provider_id, date, slots, version, updated_at
		FROM slot_ledgers
		WHERE provider_id = $1 AND date = $2`
	if forUpdate {
		sql += " FOR UPDATE"
	}
	return scanLedgerDay(q.QueryRow(ctx, sql, providerID, date))
}

// Tx

type pgTx struct {
	q querier
}

// Rows read inside a unit of work are locked so that the version guard
// rarely trips under contention; it still catches anything that slips by.

func (t *pgTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.q, id, true)
}

func (t *pgTx) ListActiveByProviderDate(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY time
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (t *pgTx) ListActiveByRequesterDate(ctx context.Context, requesterID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1 AND date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY time
	`, requesterID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	decision, targetID, targetOK, requesterOK, rDate, rTime := subStateArgs(a)

	row := t.q.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20,
		        1, COALESCE($21, now()), COALESCE($22, now()))
		RETURNING version, created_at, updated_at
	`,
		a.ID, a.RequesterID, a.ProviderID,
		a.RequesterName, a.RequesterSection, a.RequesterContact, a.ProviderName,
		a.Date, a.Time, a.Reason, a.Description, string(a.Status),
		a.Gate.AwaitingDecision, a.Gate.VerifiedBy, decision,
		targetID, targetOK, requesterOK,
		rDate, rTime,
		nullableTime(a.CreatedAt), nullableTime(a.UpdatedAt),
	)
	if err := row.Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	decision, targetID, targetOK, requesterOK, rDate, rTime := subStateArgs(a)

	row := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET provider_id = $3,
		    provider_name = $4,
		    date = $5,
		    time = $6,
		    status = $7,
		    gate_awaiting = $8,
		    gate_verified_by = $9,
		    gate_decision = $10,
		    transfer_target_id = $11,
		    transfer_target_accepted = $12,
		    transfer_requester_accepted = $13,
		    reschedule_date = $14,
		    reschedule_time = $15,
		    version = version + 1,
		    updated_at = COALESCE($16, now())
		WHERE id = $1
		  AND version = $2
		RETURNING version, updated_at
	`,
		a.ID, a.Version,
		a.ProviderID, a.ProviderName,
		a.Date, a.Time, string(a.Status),
		a.Gate.AwaitingDecision, a.Gate.VerifiedBy, decision,
		targetID, targetOK, requesterOK,
		rDate, rTime,
		nullableTime(a.UpdatedAt),
	)
	if err := row.Scan(&a.Version, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return mapWriteErr(err)
	}
	return nil
}

func (t *pgTx) GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*LedgerDay, error) {
	return getLedgerDay(ctx, t.q, providerID, date, true)
}

func (t *pgTx) SaveLedgerDay(ctx context.Context, d *LedgerDay) error {
	slots := d.Slots
	if slots == nil {
		slots = []Slot{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode ledger slots: %w", err)
	}

	var row pgx.Row
	if d.Version == 0 {
		row = t.q.QueryRow(ctx, `
			INSERT INTO slot_ledgers (provider_id, date, slots, version, updated_at)
			VALUES ($1, $2, $3, 1, COALESCE($4, now()))
			ON CONFLICT (provider_id, date) DO NOTHING
			RETURNING version, updated_at
		`, d.ProviderID, d.Date, string(raw), nullableTime(d.UpdatedAt))
	} else {
		row = t.q.QueryRow(ctx, `
			UPDATE slot_ledgers
			SET slots = $3,
			    version = version + 1,
			    updated_at = COALESCE($5, now())
			WHERE provider_id = $1
			  AND date = $2
			  AND version = $4
			RETURNING version, updated_at
		`, d.ProviderID, d.Date, string(raw), d.Version, nullableTime(d.UpdatedAt))
	}

	if err := row.Scan(&d.Version, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return mapWriteErr(err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, string(ev.Payload), nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Directory

func (r *PgRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetRequester(ctx context.Context, id uuid.UUID) (*Requester, error) {
	var (
		q       Requester
		section *string
		contact *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, section, contact, created_at, updated_at
		FROM requesters
		WHERE id = $1
	`, id).Scan(&q.ID, &q.Name, &section, &contact, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequesterNotFound
		}
		return nil, err
	}
	if section != nil {
		q.Section = *section
	}
	if contact != nil {
		q.Contact = *contact
	}
	return &q, nil
}

// CreateProvider and CreateRequester back the seed tool; the directory is
// otherwise read-only to the coordinator.
func (r *PgRepository) CreateProvider(ctx context.Context, p *Provider) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.Name).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PgRepository) CreateRequester(ctx context.Context, q *Requester) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO requesters (id, name, section, contact, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), now(), now())
		RETURNING created_at, updated_at
	`, q.ID, q.Name, q.Section, q.Contact).Scan(&q.CreatedAt, &q.UpdatedAt)
}

// Notifications

func (r *PgRepository) InsertNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, message, read, created_at)
		VALUES ($1, $2, $3, false, COALESCE($4, now()))
		RETURNING created_at
	`, n.ID, n.RecipientID, n.Message, nullableTime(n.CreatedAt)).Scan(&n.CreatedAt)
}

func (r *PgRepository) ListNotifications(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, message, read, created_at
		FROM notifications
		WHERE recipient_id = $1
		  AND (NOT $2 OR read = false)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkNotificationRead(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var n Notification
	err := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read = true
		WHERE id = $1
		RETURNING id, recipient_id, message, read, created_at
	`, id).Scan(&n.ID, &n.RecipientID, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}
