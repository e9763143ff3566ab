package appointment

import (
	"fmt"

	"github.com/hackgods/hospital-appointments/internal/apperrors"
)

var (
	ErrInvalidDate        = apperrors.New(apperrors.KindInvalidInput, "invalid_date", "date must be YYYY-MM-DD")
	ErrPastDate           = apperrors.New(apperrors.KindInvalidInput, "past_date", "cannot book a date in the past")
	ErrInvalidSlot        = apperrors.New(apperrors.KindInvalidInput, "invalid_slot", "time is not one of the doctor's slots")
	ErrDoctorOffDay       = apperrors.New(apperrors.KindInvalidInput, "doctor_not_available_on_day", "doctor not available")
	ErrDoctorUnavailable  = apperrors.New(apperrors.KindUnavailable, "doctor_unavailable", "doctor is not accepting appointments")
	ErrDepartmentMismatch = apperrors.New(apperrors.KindInvalidInput, "department_mismatch", "doctor does not belong to the department")
	ErrNoAvailableSlots   = apperrors.New(apperrors.KindUnavailable, "no_available_slots", "no available slots found for this doctor")
	ErrDuplicatePatient   = apperrors.New(apperrors.KindConflict, "duplicate_patient", "patient already exists")
	ErrForbidden          = apperrors.New(apperrors.KindForbidden, "forbidden", "not allowed for this actor")
	ErrMissedDateNotPast  = apperrors.New(apperrors.KindInvalidInput, "date_not_past", "only past dates can be marked missed")
)

// DuplicatePatientError carries the identifier of the patient that already
// uses the email or contact, so the caller can book with it instead.
type DuplicatePatientError struct {
	ExistingPatientID string
}

func (e *DuplicatePatientError) Error() string {
	return fmt.Sprintf("patient already exists with patient ID %s; book with that ID", e.ExistingPatientID)
}

func (e *DuplicatePatientError) Unwrap() error {
	return ErrDuplicatePatient
}
