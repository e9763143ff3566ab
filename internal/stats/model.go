// Package stats stores one immutable aggregate snapshot per calendar date
// and builds it from the appointment ledger.
package stats

import (
	"time"

	"github.com/google/uuid"
)

type Counts struct {
	Total    int `json:"totalAppointments"`
	Attended int `json:"attendedAppointments"`
	Missed   int `json:"missedAppointments"`
	Booked   int `json:"bookedAppointments"`
}

func (c *Counts) add(status string) {
	c.Total++
	switch status {
	case "Attended":
		c.Attended++
	case "Missed":
		c.Missed++
	case "Booked":
		c.Booked++
	}
}

type DepartmentStats struct {
	DepartmentID   uuid.UUID `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	Counts
}

type DoctorStats struct {
	DoctorID       uuid.UUID `json:"doctorId"`
	DoctorName     string    `json:"doctorName"`
	Specialization string    `json:"specialization"`
	Counts
}

type DailySnapshot struct {
	Date string `json:"date"`
	Counts
	Departments []DepartmentStats `json:"departmentStats"`
	Doctors     []DoctorStats     `json:"doctorStats"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type SnapshotPage struct {
	Items      []DailySnapshot `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// Totals sums snapshots over a date range.
type Totals struct {
	Days     int64 `json:"totalDays"`
	Total    int64 `json:"totalAppointments"`
	Attended int64 `json:"totalAttended"`
	Missed   int64 `json:"totalMissed"`
	Booked   int64 `json:"totalBooked"`
}

type Summary struct {
	Totals
	AvgDailyAppointments  float64 `json:"avgDailyAppointments"`
	OverallAttendanceRate float64 `json:"overallAttendanceRate"`
	OverallMissedRate     float64 `json:"overallMissedRate"`
}

const (
	DefaultPageLimit = 30
	MaxPageLimit     = 100
)

func paging(page, limit int) (int, int) {
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

func newSnapshotPage(items []DailySnapshot, total int64, page, limit int) SnapshotPage {
	if items == nil {
		items = []DailySnapshot{}
	}
	return SnapshotPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}
}
