package api

import (
	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/clinic"
)

// BookAppointmentRequest carries either PatientID (PAT-... or internal id)
// or the new patient's details.
type BookAppointmentRequest struct {
	DoctorID     string `json:"doctorId"`
	DepartmentID string `json:"departmentId,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`

	PatientID        string        `json:"patientId,omitempty"`
	PatientName      string        `json:"patientName,omitempty"`
	PatientEmail     string        `json:"patientEmail,omitempty"`
	PatientContact   string        `json:"patientContact,omitempty"`
	PatientAge       int           `json:"patientAge,omitempty"`
	PatientGender    clinic.Gender `json:"patientGender,omitempty"`
	PatientAddress   string        `json:"patientAddress,omitempty"`
	EmergencyContact string        `json:"emergencyContact,omitempty"`
}

func (r BookAppointmentRequest) profile() *clinic.Profile {
	return &clinic.Profile{
		Name:             r.PatientName,
		Email:            r.PatientEmail,
		Contact:          r.PatientContact,
		Age:              r.PatientAge,
		Gender:           r.PatientGender,
		Address:          r.PatientAddress,
		EmergencyContact: r.EmergencyContact,
	}
}

type PatientSummary struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
}

type RequestedSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type BookAppointmentResponse struct {
	Message        string                   `json:"message"`
	IsNewPatient   bool                     `json:"isNewPatient"`
	PatientID      string                   `json:"patientId"`
	PatientDetails PatientSummary           `json:"patientDetails"`
	Appointment    *appointment.Appointment `json:"appointment"`
	Outcome        appointment.Outcome      `json:"outcome"`
	Redirected     bool                     `json:"redirected"`
	Requested      RequestedSlot            `json:"requested"`
	Note           string                   `json:"note,omitempty"`
}

type UpdateStatusRequest struct {
	Status appointment.Status `json:"status"`
}

type DateRequest struct {
	Date string `json:"date"`
}

type MarkMissedResponse struct {
	Date    string `json:"date"`
	Updated int64  `json:"updated"`
}

type NextAvailableResponse struct {
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type SlotsResponse struct {
	DoctorID string            `json:"doctorId"`
	Date     string            `json:"date"`
	Slots    []clinic.TimeSlot `json:"slots"`
}

type ErrorResponse struct {
	Error             string `json:"error"`
	Details           string `json:"details,omitempty"`
	ExistingPatientID string `json:"existing_patient_id,omitempty"`
}
