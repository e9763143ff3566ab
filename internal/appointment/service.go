package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/auth"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
	"github.com/hackgods/hospital-appointments/internal/db"
	redisclient "github.com/hackgods/hospital-appointments/internal/redis"
	"github.com/hackgods/hospital-appointments/internal/slots"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentRedirected    = "APPOINTMENT_REDIRECTED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentsMarkedMissed = "APPOINTMENTS_MARKED_MISSED"
)

// maxReserveAttempts bounds how often a booking re-searches after losing
// a slot race.
const maxReserveAttempts = 3

type Outcome string

const (
	OutcomeReserved   Outcome = "Reserved"
	OutcomeRedirected Outcome = "Redirected"
)

// BookRequest names either an existing patient (PatientRef, a PAT- id or
// internal UUID) or a NewPatient profile.
type BookRequest struct {
	DoctorID     uuid.UUID
	DepartmentID *uuid.UUID
	Date         string
	Time         string
	PatientRef   string
	NewPatient   *clinic.Profile
}

type BookResult struct {
	Appointment   *Appointment    `json:"appointment"`
	Patient       *clinic.Patient `json:"patient"`
	NewPatient    bool            `json:"isNewPatient"`
	Outcome       Outcome         `json:"outcome"`
	Redirected    bool            `json:"redirected"`
	RequestedDate string          `json:"requestedDate"`
	RequestedTime string          `json:"requestedTime"`
}

type Options struct {
	HorizonDays int
	Clock       calendar.Clock
	Logger      zerolog.Logger
}

type Service struct {
	ledger  Ledger
	clinic  clinic.Store
	tx      db.Transactor
	locker  redisclient.Locker
	clock   calendar.Clock
	horizon int
	log     zerolog.Logger
}

func NewService(ledger Ledger, store clinic.Store, tx db.Transactor, locker redisclient.Locker, opts Options) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	if opts.Clock == nil {
		opts.Clock = calendar.SystemClock{}
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = slots.DefaultHorizonDays
	}
	return &Service{
		ledger:  ledger,
		clinic:  store,
		tx:      tx,
		locker:  locker,
		clock:   opts.Clock,
		horizon: opts.HorizonDays,
		log:     opts.Logger,
	}
}

// Today is the current calendar date in the service's clock location.
func (s *Service) Today() string {
	return calendar.Today(s.clock)
}

// Book reserves the requested slot, or the next free one when it is taken.
func (s *Service) Book(ctx context.Context, actor auth.Actor, req BookRequest) (*BookResult, error) {
	if _, err := calendar.ParseDate(req.Date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date)
	}
	if !calendar.ValidTime(req.Time) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, req.Time)
	}
	if req.Date < s.Today() {
		return nil, ErrPastDate
	}

	// cached copies may lag a deactivation
	doctor, err := clinic.GetDoctorFresh(ctx, s.clinic, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive() {
		return nil, ErrDoctorUnavailable
	}

	departmentID := doctor.DepartmentID
	if req.DepartmentID != nil && *req.DepartmentID != uuid.Nil {
		if *req.DepartmentID != doctor.DepartmentID {
			return nil, ErrDepartmentMismatch
		}
		departmentID = *req.DepartmentID
	}

	if err := authorizeBooking(actor, departmentID); err != nil {
		return nil, err
	}

	weekday, _ := calendar.Weekday(req.Date)
	if !doctor.WorksOn(weekday) {
		return nil, fmt.Errorf("%w on %ss", ErrDoctorOffDay, weekday)
	}
	if !doctor.HasSlotStart(req.Time) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSlot, req.Time)
	}

	patient, err := s.resolveBookingPatient(ctx, req)
	if err != nil {
		return nil, err
	}
	if p, ok := actor.(auth.PatientActor); ok && patient != nil && patient.ID != p.ID {
		return nil, ErrForbidden
	}

	var createdBy *uuid.UUID
	if id := auth.ActorID(actor); id != uuid.Nil {
		createdBy = &id
	}

	result := &BookResult{RequestedDate: req.Date, RequestedTime: req.Time}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		skip := skipSet{}
		target := slots.Candidate{Date: req.Date, Slot: clinic.TimeSlot{StartTime: req.Time}}

		taken, err := s.ledger.TakenTimes(ctx, doctor.ID, req.Date)
		if err != nil {
			return err
		}
		free := !slices.Contains(taken, req.Time)

		for attempt := 1; ; attempt++ {
			if !free {
				resolver := slots.NewResolver(skippingOccupancy{Occupancy: s.ledger, skip: skip})
				c, ok, err := resolver.FindNextAvailable(ctx, doctor, req.Date, s.horizon)
				if err != nil {
					return err
				}
				if !ok {
					return ErrNoAvailableSlots
				}
				target = c
			}

			// registered only once a slot is known, so a rejected booking
			// leaves no patient behind
			if patient == nil {
				p, err := s.clinic.CreatePatient(ctx, *req.NewPatient)
				if err != nil {
					return err
				}
				patient = p
				result.NewPatient = true
			}

			appt, err := s.reserve(ctx, ReserveParams{
				DoctorID:     doctor.ID,
				PatientID:    patient.ID,
				DepartmentID: &departmentID,
				Date:         target.Date,
				Time:         target.Time(),
				CreatedBy:    createdBy,
			})
			if err == nil {
				result.Appointment = appt
				return nil
			}
			if !errors.Is(err, ErrSlotTaken) || attempt >= maxReserveAttempts {
				return err
			}

			s.log.Debug().
				Str("doctor_id", doctor.ID.String()).
				Str("date", target.Date).
				Str("time", target.Time()).
				Int("attempt", attempt).
				Msg("slot race lost, searching again")
			skip.add(target.Date, target.Time())
			free = false
		}
	})
	if err != nil {
		return nil, err
	}

	result.Patient = patient
	result.Redirected = result.Appointment.Date != req.Date || result.Appointment.Time != req.Time
	result.Outcome = OutcomeReserved
	event := EventAppointmentBooked
	if result.Redirected {
		result.Outcome = OutcomeRedirected
		event = EventAppointmentRedirected
	}

	s.logEvent(ctx, result.Appointment.ID, event, map[string]any{
		"doctor_id":      doctor.ID.String(),
		"patient_id":     patient.PatientID,
		"date":           result.Appointment.Date,
		"time":           result.Appointment.Time,
		"requested_date": req.Date,
		"requested_time": req.Time,
		"new_patient":    result.NewPatient,
	})

	return result, nil
}

// reserve takes the per-slot lock around the ledger insert. A lock held by
// someone else counts as a lost race.
func (s *Service) reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	var appt *Appointment
	err := s.locker.WithLock(ctx, redisclient.SlotKey(p.DoctorID, p.Date, p.Time), func(lockCtx context.Context) error {
		a, err := s.ledger.Reserve(lockCtx, p)
		if err != nil {
			return err
		}
		appt = a
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrSlotTaken
	}
	return appt, err
}

func authorizeBooking(actor auth.Actor, departmentID uuid.UUID) error {
	switch a := actor.(type) {
	case auth.Admin, auth.SubAdmin, auth.PatientActor, auth.Anonymous:
		return nil
	case auth.Staff:
		if a.DepartmentID != departmentID {
			return fmt.Errorf("%w: staff may only book for their own department", ErrForbidden)
		}
		return nil
	case auth.DoctorActor:
		return fmt.Errorf("%w: doctors cannot book appointments", ErrForbidden)
	default:
		return ErrForbidden
	}
}

// resolveBookingPatient returns the existing patient, or nil for a valid
// new profile that matches nobody.
func (s *Service) resolveBookingPatient(ctx context.Context, req BookRequest) (*clinic.Patient, error) {
	if req.PatientRef != "" {
		return s.ResolvePatient(ctx, req.PatientRef)
	}
	if req.NewPatient == nil {
		return nil, fmt.Errorf("%w: provide a patient ID or new patient details", clinic.ErrInvalidPatientProfile)
	}
	if err := req.NewPatient.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.clinic.FindPatientByContactOrEmail(ctx, req.NewPatient.Email, req.NewPatient.Contact)
	switch {
	case err == nil:
		return nil, &DuplicatePatientError{ExistingPatientID: existing.PatientID}
	case errors.Is(err, clinic.ErrPatientNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// ResolvePatient looks ref up as a human-readable ID first, then as an
// internal UUID.
func (s *Service) ResolvePatient(ctx context.Context, ref string) (*clinic.Patient, error) {
	p, err := s.clinic.FindPatientByHumanID(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, clinic.ErrPatientNotFound) {
		return nil, err
	}

	id, parseErr := uuid.Parse(ref)
	if parseErr != nil {
		return nil, clinic.ErrPatientNotFound
	}
	return s.clinic.GetPatient(ctx, id)
}

// Cancel deletes a future Booked appointment on behalf of its patient.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID, patientRef string) error {
	patient, err := s.ResolvePatient(ctx, patientRef)
	if err != nil {
		return err
	}

	if err := s.ledger.Cancel(ctx, appointmentID, patient.ID, s.Today()); err != nil {
		return err
	}

	s.logEvent(ctx, appointmentID, EventAppointmentCancelled, map[string]any{
		"patient_id": patient.PatientID,
	})
	return nil
}

// UpdateStatus is the manual override path. Admins may set any status;
// staff and doctors may only record Attended or Missed, staff within
// their department and doctors on their own appointments.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorizeStatusChange(actor, appt, status); err != nil {
		return nil, err
	}

	updated, err := s.ledger.TransitionStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentStatusChanged, map[string]any{
		"from":     appt.Status,
		"to":       status,
		"actor":    actor.Role(),
		"actor_id": auth.ActorID(actor).String(),
	})
	return updated, nil
}

func authorizeStatusChange(actor auth.Actor, appt *Appointment, status Status) error {
	outcome := status == StatusAttended || status == StatusMissed

	switch a := actor.(type) {
	case auth.Admin, auth.SubAdmin:
		return nil
	case auth.Staff:
		if !outcome {
			return fmt.Errorf("%w: staff may only mark Attended or Missed", ErrForbidden)
		}
		if appt.DepartmentID == nil || *appt.DepartmentID != a.DepartmentID {
			return fmt.Errorf("%w: appointment belongs to another department", ErrForbidden)
		}
		return nil
	case auth.DoctorActor:
		if !outcome {
			return fmt.Errorf("%w: doctors may only mark Attended or Missed", ErrForbidden)
		}
		if appt.DoctorID != a.ID {
			return fmt.Errorf("%w: appointment belongs to another doctor", ErrForbidden)
		}
		return nil
	case auth.PatientActor, auth.Anonymous:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

// Get returns one appointment. Non-administrative actors only see their
// own scope.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func visibleTo(actor auth.Actor, appt *Appointment) bool {
	switch a := actor.(type) {
	case auth.Admin, auth.SubAdmin:
		return true
	case auth.Staff:
		return appt.DepartmentID != nil && *appt.DepartmentID == a.DepartmentID
	case auth.DoctorActor:
		return appt.DoctorID == a.ID
	case auth.PatientActor:
		return appt.PatientID == a.ID
	default:
		return false
	}
}

// List applies the actor's scope on top of f.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) (Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, ErrInvalidStatus
	}

	switch a := actor.(type) {
	case auth.Admin, auth.SubAdmin:
	case auth.Staff:
		f.DepartmentID = &a.DepartmentID
	case auth.DoctorActor:
		f.DoctorID = &a.ID
	case auth.PatientActor:
		f.PatientID = &a.ID
	default:
		return Page{}, ErrForbidden
	}

	return s.ledger.Query(ctx, f)
}

type HistorySummary struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Past     int `json:"past"`
	Attended int `json:"attended"`
	Missed   int `json:"missed"`
}

type PatientHistory struct {
	Patient  *clinic.Patient `json:"patient"`
	Summary  HistorySummary  `json:"summary"`
	Upcoming []Appointment   `json:"upcoming"`
	Past     []Appointment   `json:"past"`
}

// HistoryFilter narrows a patient's history. Upcoming true keeps dates
// from today on, false keeps earlier dates, nil keeps both.
type HistoryFilter struct {
	Status   Status
	Upcoming *bool
}

func (s *Service) PatientHistory(ctx context.Context, patientRef string, hf HistoryFilter) (*PatientHistory, error) {
	if hf.Status != "" && !hf.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	patient, err := s.ResolvePatient(ctx, patientRef)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	f := Filter{PatientID: &patient.ID, Status: hf.Status}
	if hf.Upcoming != nil {
		if *hf.Upcoming {
			f.StartDate = today
		} else {
			yesterday, _ := calendar.AddDays(today, -1)
			f.EndDate = yesterday
		}
	}

	all, err := s.queryAll(ctx, f)
	if err != nil {
		return nil, err
	}

	h := &PatientHistory{Patient: patient, Upcoming: []Appointment{}, Past: []Appointment{}}
	for _, a := range all {
		if a.Date < today {
			h.Past = append(h.Past, a)
		} else {
			h.Upcoming = append(h.Upcoming, a)
		}
		switch a.Status {
		case StatusAttended:
			h.Summary.Attended++
		case StatusMissed:
			h.Summary.Missed++
		}
	}
	h.Summary.Total = len(all)
	h.Summary.Upcoming = len(h.Upcoming)
	h.Summary.Past = len(h.Past)
	return h, nil
}

// queryAll pages through every match of f.
func (s *Service) queryAll(ctx context.Context, f Filter) ([]Appointment, error) {
	f.Limit = MaxPageLimit
	var out []Appointment
	for page := 1; ; page++ {
		f.Page = page
		p, err := s.ledger.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if page >= p.TotalPages {
			return out, nil
		}
	}
}

// MarkMissedForDate moves the date's Booked appointments to Missed. Only
// dates before today qualify.
func (s *Service) MarkMissedForDate(ctx context.Context, date string) (int64, error) {
	if _, err := calendar.ParseDate(date); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if date >= s.Today() {
		return 0, ErrMissedDateNotPast
	}

	n, err := s.ledger.MarkMissed(ctx, date)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.logEvent(ctx, uuid.Nil, EventAppointmentsMarkedMissed, map[string]any{
			"date":    date,
			"updated": n,
		})
	}
	return n, nil
}

// Resolver exposes slot lookups backed by this service's ledger.
func (s *Service) Resolver() *slots.Resolver {
	return slots.NewResolver(s.ledger)
}

// OpenSlots lists the free slots of a doctor on date.
func (s *Service) OpenSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]clinic.TimeSlot, error) {
	if _, err := calendar.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	doctor, err := s.clinic.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive() {
		return []clinic.TimeSlot{}, nil
	}
	open, err := s.Resolver().ListOpenSlots(ctx, doctor, date)
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = []clinic.TimeSlot{}
	}
	return open, nil
}

// NextAvailable finds the first free slot of a doctor from date on.
func (s *Service) NextAvailable(ctx context.Context, doctorID uuid.UUID, from string) (slots.Candidate, error) {
	if from == "" {
		from = s.Today()
	}
	if _, err := calendar.ParseDate(from); err != nil {
		return slots.Candidate{}, fmt.Errorf("%w: %q", ErrInvalidDate, from)
	}
	doctor, err := s.clinic.GetDoctor(ctx, doctorID)
	if err != nil {
		return slots.Candidate{}, err
	}
	if !doctor.IsActive() {
		return slots.Candidate{}, ErrDoctorUnavailable
	}
	c, ok, err := s.Resolver().FindNextAvailable(ctx, doctor, from, s.horizon)
	if err != nil {
		return slots.Candidate{}, err
	}
	if !ok {
		return slots.Candidate{}, ErrNoAvailableSlots
	}
	return c, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.clock.Now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.ledger.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// skipSet holds slots this request already lost, so a re-search does not
// return them again before the winner's row is visible.
type skipSet map[string][]string

func (s skipSet) add(date, t string) {
	s[date] = append(s[date], t)
}

type skippingOccupancy struct {
	slots.Occupancy
	skip skipSet
}

func (o skippingOccupancy) TakenTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	taken, err := o.Occupancy.TakenTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return append(taken, o.skip[date]...), nil
}
