package clinic

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/apperrors"
)

var (
	ErrDoctorNotFound        = apperrors.New(apperrors.KindNotFound, "doctor_not_found", "doctor not found")
	ErrDepartmentNotFound    = apperrors.New(apperrors.KindNotFound, "department_not_found", "department not found")
	ErrPatientNotFound       = apperrors.New(apperrors.KindNotFound, "patient_not_found", "patient not found")
	ErrInvalidPatientProfile = apperrors.New(apperrors.KindInvalidInput, "invalid_patient_profile", "invalid patient profile")
)

// Store is the reference data needed by booking, reporting and the
// scheduler. Implementations join the transaction carried by ctx, if any.
type Store interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindPatientByHumanID(ctx context.Context, patientID string) (*Patient, error)
	// FindPatientByContactOrEmail matches a patient whose email OR contact
	// equals the given values.
	FindPatientByContactOrEmail(ctx context.Context, email, contact string) (*Patient, error)
	// CreatePatient assigns the next PAT-YYYY-NNNNNN identifier.
	CreatePatient(ctx context.Context, p Profile) (*Patient, error)
	CountPatientsCreatedBefore(ctx context.Context, t time.Time) (int64, error)
}

// FreshDoctorReader is implemented by stores that may serve a stale doctor
// from GetDoctor.
type FreshDoctorReader interface {
	GetDoctorFresh(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

// GetDoctorFresh returns the doctor as currently stored, bypassing any
// cache in front of s. Decisions that depend on the doctor's status read
// through here.
func GetDoctorFresh(ctx context.Context, s Store, id uuid.UUID) (*Doctor, error) {
	if f, ok := s.(FreshDoctorReader); ok {
		return f.GetDoctorFresh(ctx, id)
	}
	return s.GetDoctor(ctx, id)
}

// PatientSequence is the id_sequences row backing patient identifiers.
const PatientSequence = "patient"

var patientIDPattern = regexp.MustCompile(`^PAT-\d{4}-\d{6}$`)

// FormatPatientID renders the human-readable patient identifier, e.g.
// FormatPatientID(2025, 1) == "PAT-2025-000001".
func FormatPatientID(year int, seq int64) string {
	return fmt.Sprintf("PAT-%04d-%06d", year, seq)
}

func ValidPatientID(s string) bool {
	return patientIDPattern.MatchString(s)
}
