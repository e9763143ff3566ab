package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked   Status = "Booked"
	StatusAttended Status = "Attended"
	StatusMissed   Status = "Missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusAttended, StatusMissed:
		return true
	}
	return false
}

// Open statuses hold their slot.
func (s Status) Open() bool {
	return s == StatusBooked || s == StatusAttended
}

// Appointment dates are YYYY-MM-DD and times HH:MM, stored and compared
// as strings.
type Appointment struct {
	ID           uuid.UUID  `json:"id"`
	DoctorID     uuid.UUID  `json:"doctorId"`
	PatientID    uuid.UUID  `json:"patientId"`
	DepartmentID *uuid.UUID `json:"departmentId,omitempty"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	Status       Status     `json:"status"`
	CreatedBy    *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type ReserveParams struct {
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	DepartmentID *uuid.UUID
	Date         string
	Time         string
	CreatedBy    *uuid.UUID
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Filter selects appointments. Zero fields do not constrain. Date matches
// one day; StartDate/EndDate are an inclusive range.
type Filter struct {
	Status       Status
	Date         string
	StartDate    string
	EndDate      string
	Time         string
	TimePrefix   string
	DoctorID     *uuid.UUID
	DepartmentID *uuid.UUID
	PatientID    *uuid.UUID
	Page         int
	Limit        int
}

// Paging returns the 1-indexed page and bounded limit.
func (f Filter) Paging() (page, limit int) {
	page, limit = f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

type Page struct {
	Items      []Appointment `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

func newPage(items []Appointment, total int64, page, limit int) Page {
	if items == nil {
		items = []Appointment{}
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Page{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

type StatusCounts struct {
	Total    int64 `json:"total"`
	Booked   int64 `json:"booked"`
	Attended int64 `json:"attended"`
	Missed   int64 `json:"missed"`
}

func (c *StatusCounts) add(s Status, n int64) {
	c.Total += n
	switch s {
	case StatusBooked:
		c.Booked += n
	case StatusAttended:
		c.Attended += n
	case StatusMissed:
		c.Missed += n
	}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
