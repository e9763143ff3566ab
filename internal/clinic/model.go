// Package clinic is the reference data read by scheduling: doctors, their
// weekly availability, departments and patients.
package clinic

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DoctorStatus string

const (
	DoctorActive   DoctorStatus = "Active"
	DoctorInactive DoctorStatus = "Inactive"
)

// TimeSlot is one bookable interval of a doctor's weekly template.
type TimeSlot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type Doctor struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Specialization string       `json:"specialization"`
	DepartmentID   uuid.UUID    `json:"departmentId"`
	AvailableDays  []string     `json:"availableDays"`
	TimeSlots      []TimeSlot   `json:"timeSlots"`
	Status         DoctorStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (d *Doctor) IsActive() bool {
	return d.Status == DoctorActive
}

// WorksOn reports whether weekday ("Monday") is one of the doctor's days.
func (d *Doctor) WorksOn(weekday string) bool {
	return slices.Contains(d.AvailableDays, weekday)
}

// HasSlotStart reports whether t is the start time of a configured slot.
func (d *Doctor) HasSlotStart(t string) bool {
	for _, s := range d.TimeSlots {
		if s.StartTime == t {
			return true
		}
	}
	return false
}

type Department struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Profile is the data a caller supplies to register a new patient.
type Profile struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Contact          string `json:"contact"`
	Age              int    `json:"age"`
	Gender           Gender `json:"gender"`
	Address          string `json:"address,omitempty"`
	EmergencyContact string `json:"emergencyContact,omitempty"`
}

// Validate checks the required registration fields.
func (p Profile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(p.Contact) == "" {
		missing = append(missing, "contact")
	}
	if p.Age == 0 {
		missing = append(missing, "age")
	}
	if p.Gender == "" {
		missing = append(missing, "gender")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPatientProfile, strings.Join(missing, ", "))
	}

	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidPatientProfile, p.Email)
	}
	if p.Age < 1 || p.Age > 120 {
		return fmt.Errorf("%w: age must be between 1 and 120", ErrInvalidPatientProfile)
	}
	if !p.Gender.Valid() {
		return fmt.Errorf("%w: gender must be Male, Female or Other", ErrInvalidPatientProfile)
	}
	return nil
}

type Patient struct {
	ID               uuid.UUID `json:"id"`
	PatientID        string    `json:"patientId"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Contact          string    `json:"contact"`
	Age              int       `json:"age"`
	Gender           Gender    `json:"gender"`
	Address          string    `json:"address,omitempty"`
	EmergencyContact string    `json:"emergencyContact,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
