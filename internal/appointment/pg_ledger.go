package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-appointments/internal/db"
)

var pg = goqu.Dialect("postgres")

// PgLedger relies on the appointments_open_slot_uniq partial index for
// the no-double-booking guarantee.
type PgLedger struct {
	pool db.Querier
}

func NewPgLedger(pool db.Querier) *PgLedger {
	return &PgLedger{pool: pool}
}

func (l *PgLedger) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, l.pool)
}

// Helpers

const appointmentColumns = `id, doctor_id, patient_id, department_id, date, time, status, created_by, created_at`

var appointmentSelect = []any{"id", "doctor_id", "patient_id", "department_id", "date", "time", "status", "created_by", "created_at"}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.DepartmentID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.CreatedBy,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Interface methods

func (l *PgLedger) Reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	id := uuid.New()

	// ON CONFLICT DO NOTHING keeps the surrounding transaction usable when
	// the slot is taken; a plain unique violation would abort it.
	row := l.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, department_id, date, time, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, 'Booked', $7)
		ON CONFLICT (doctor_id, date, time) WHERE status IN ('Booked', 'Attended') DO NOTHING
		RETURNING `+appointmentColumns+`
	`, id, p.DoctorID, p.PatientID, p.DepartmentID, p.Date, p.Time, p.CreatedBy)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) || db.IsUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

func (l *PgLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (l *PgLedger) TransitionStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	row := l.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)

	a, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return a, nil
}

func (l *PgLedger) Cancel(ctx context.Context, id, patientID uuid.UUID, today string) error {
	tag, err := l.conn(ctx).Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND patient_id = $2
		  AND status = 'Booked'
		  AND date > $3
	`, id, patientID, today)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var owned bool
	err = l.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND patient_id = $2)
	`, id, patientID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("check appointment owner: %w", err)
	}
	if !owned {
		return ErrAppointmentNotFound
	}
	return ErrNotCancelable
}

func filterExpressions(f Filter) []exp.Expression {
	var where []exp.Expression
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(string(f.Status)))
	}
	if f.Date != "" {
		where = append(where, goqu.C("date").Eq(f.Date))
	}
	if f.StartDate != "" {
		where = append(where, goqu.C("date").Gte(f.StartDate))
	}
	if f.EndDate != "" {
		where = append(where, goqu.C("date").Lte(f.EndDate))
	}
	if f.Time != "" {
		where = append(where, goqu.C("time").Eq(f.Time))
	}
	if f.TimePrefix != "" {
		where = append(where, goqu.C("time").Like(f.TimePrefix+"%"))
	}
	if f.DoctorID != nil {
		where = append(where, goqu.C("doctor_id").Eq(f.DoctorID.String()))
	}
	if f.DepartmentID != nil {
		where = append(where, goqu.C("department_id").Eq(f.DepartmentID.String()))
	}
	if f.PatientID != nil {
		where = append(where, goqu.C("patient_id").Eq(f.PatientID.String()))
	}
	return where
}

func (l *PgLedger) Query(ctx context.Context, f Filter) (Page, error) {
	page, limit := f.Paging()
	where := filterExpressions(f)

	countSQL, countArgs, err := pg.From("appointments").
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Page{}, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := l.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count appointments: %w", err)
	}

	listSQL, listArgs, err := pg.From("appointments").
		Select(appointmentSelect...).
		Where(where...).
		Order(goqu.C("date").Desc(), goqu.C("time").Asc(), goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint((page - 1) * limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Page{}, fmt.Errorf("build list query: %w", err)
	}

	rows, err := l.conn(ctx).Query(ctx, listSQL, listArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	return newPage(items, total, page, limit), nil
}

func (l *PgLedger) TakenTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := l.conn(ctx).Query(ctx, `
		SELECT time
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status IN ('Booked', 'Attended')
		ORDER BY time
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load taken times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *PgLedger) MarkMissed(ctx context.Context, date string) (int64, error) {
	tag, err := l.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = 'Missed'
		WHERE date = $1
		  AND status = 'Booked'
	`, date)
	if err != nil {
		return 0, fmt.Errorf("mark missed for %s: %w", date, err)
	}
	return tag.RowsAffected(), nil
}

func (l *PgLedger) CountByStatus(ctx context.Context, f Filter) (StatusCounts, error) {
	query, args, err := pg.From("appointments").
		Select(goqu.C("status"), goqu.COUNT(goqu.Star())).
		Where(filterExpressions(f)...).
		GroupBy(goqu.C("status")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return StatusCounts{}, fmt.Errorf("build count query: %w", err)
	}

	rows, err := l.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	var c StatusCounts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, err
		}
		c.add(Status(status), n)
	}
	return c, rows.Err()
}

func (l *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := l.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
