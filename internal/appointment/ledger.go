package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/apperrors"
)

var (
	ErrAppointmentNotFound = apperrors.New(apperrors.KindNotFound, "appointment_not_found", "appointment not found")
	ErrSlotTaken           = apperrors.New(apperrors.KindConflict, "slot_taken", "slot already has an open appointment")
	ErrInvalidStatus       = apperrors.New(apperrors.KindInvalidInput, "invalid_status", "status must be Booked, Attended or Missed")
	ErrNotCancelable       = apperrors.New(apperrors.KindIllegalState, "not_cancelable", "only future Booked appointments can be cancelled")
)

// Ledger is the authoritative appointment store. It alone enforces that a
// (doctor, date, time) holds at most one Booked or Attended appointment.
type Ledger interface {
	// Reserve inserts a Booked appointment, or fails with ErrSlotTaken when
	// an open appointment already holds the slot. Concurrent callers for
	// the same slot see exactly one success.
	Reserve(ctx context.Context, p ReserveParams) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// TransitionStatus sets status unconditionally; callers decide which
	// transitions are legal.
	TransitionStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)
	// Cancel deletes the patient's appointment if it is Booked and dated
	// after today.
	Cancel(ctx context.Context, id, patientID uuid.UUID, today string) error
	Query(ctx context.Context, f Filter) (Page, error)
	// TakenTimes lists start times held by open appointments.
	TakenTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
	// MarkMissed moves every Booked appointment on date to Missed.
	MarkMissed(ctx context.Context, date string) (int64, error)
	CountByStatus(ctx context.Context, f Filter) (StatusCounts, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
