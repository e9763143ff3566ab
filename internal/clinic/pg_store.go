package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/db"
)

type PgStore struct {
	pool  db.Querier
	clock calendar.Clock
}

func NewPgStore(pool db.Querier, clock calendar.Clock) *PgStore {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &PgStore{pool: pool, clock: clock}
}

func (s *PgStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

// Helpers

const doctorColumns = `id, name, email, specialization, department_id, available_days, time_slots, status, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var slots []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Specialization,
		&d.DepartmentID,
		&d.AvailableDays,
		&slots,
		&d.Status,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &d.TimeSlots); err != nil {
			return nil, fmt.Errorf("decode time_slots of doctor %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

const patientColumns = `id, patient_id, name, email, contact, age, gender, address, emergency_contact, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.Name,
		&p.Email,
		&p.Contact,
		&p.Age,
		&p.Gender,
		&p.Address,
		&p.EmergencyContact,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Interface methods

func (s *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT id, name, description
		FROM departments
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PgStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) FindPatientByHumanID(ctx context.Context, patientID string) (*Patient, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	return scanPatient(row)
}

func (s *PgStore) FindPatientByContactOrEmail(ctx context.Context, email, contact string) (*Patient, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE email = $1 OR contact = $2
		ORDER BY created_at
		LIMIT 1
	`, email, contact)
	return scanPatient(row)
}

// NextSequence atomically increments and returns the named counter.
func (s *PgStore) NextSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO id_sequences (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = id_sequences.value + 1
		RETURNING value
	`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return v, nil
}

func (s *PgStore) CreatePatient(ctx context.Context, prof Profile) (*Patient, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	seq, err := s.NextSequence(ctx, PatientSequence)
	if err != nil {
		return nil, err
	}

	p := Patient{
		ID:               uuid.New(),
		PatientID:        FormatPatientID(s.clock.Now().Year(), seq),
		Name:             prof.Name,
		Email:            prof.Email,
		Contact:          prof.Contact,
		Age:              prof.Age,
		Gender:           prof.Gender,
		Address:          prof.Address,
		EmergencyContact: prof.EmergencyContact,
	}

	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, patient_id, name, email, contact, age, gender, address, emergency_contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, p.ID, p.PatientID, p.Name, p.Email, p.Contact, p.Age, p.Gender, p.Address, p.EmergencyContact).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return &p, nil
}

func (s *PgStore) CountPatientsCreatedBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM patients WHERE created_at < $1
	`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

// CreateDepartment and CreateDoctor are used by the seed tooling; the
// service itself does not manage reference data.

func (s *PgStore) CreateDepartment(ctx context.Context, d Department) (*Department, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO departments (id, name, description)
		VALUES ($1, $2, $3)
	`, d.ID, d.Name, d.Description)
	if err != nil {
		return nil, fmt.Errorf("insert department: %w", err)
	}
	return &d, nil
}

func (s *PgStore) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DoctorActive
	}
	slots, err := json.Marshal(d.TimeSlots)
	if err != nil {
		return nil, fmt.Errorf("encode time slots: %w", err)
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, name, email, specialization, department_id, available_days, time_slots, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.Name, d.Email, d.Specialization, d.DepartmentID, d.AvailableDays, slots, d.Status)
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return &d, nil
}

// ListDoctors returns every doctor, ordered by name.
func (s *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
