// Package slots answers which of a doctor's configured slots are free on
// a date, and where the next free one is.
package slots

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
)

// DefaultHorizonDays bounds the search for an alternative slot.
const DefaultHorizonDays = 30

// Occupancy reports the start times held by open (Booked or Attended)
// appointments of a doctor on a date.
type Occupancy interface {
	TakenTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

// Candidate is a free (date, start time) pair.
type Candidate struct {
	Date string          `json:"date"`
	Slot clinic.TimeSlot `json:"slot"`
}

func (c Candidate) Time() string {
	return c.Slot.StartTime
}

type Resolver struct {
	occupancy Occupancy
}

func NewResolver(occupancy Occupancy) *Resolver {
	return &Resolver{occupancy: occupancy}
}

// IsOperatingDay reports whether the weekday of date is one of the
// doctor's available days.
func IsOperatingDay(doctor *clinic.Doctor, date string) (bool, error) {
	weekday, err := calendar.Weekday(date)
	if err != nil {
		return false, err
	}
	return doctor.WorksOn(weekday), nil
}

// ListOpenSlots returns the doctor's slots on date that no open appointment
// holds, in configured order. A non-operating day has no slots.
func (r *Resolver) ListOpenSlots(ctx context.Context, doctor *clinic.Doctor, date string) ([]clinic.TimeSlot, error) {
	operating, err := IsOperatingDay(doctor, date)
	if err != nil {
		return nil, err
	}
	if !operating {
		return nil, nil
	}

	taken, err := r.occupancy.TakenTimes(ctx, doctor.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load occupancy for %s: %w", date, err)
	}

	open := make([]clinic.TimeSlot, 0, len(doctor.TimeSlots))
	for _, s := range doctor.TimeSlots {
		if !slices.Contains(taken, s.StartTime) {
			open = append(open, s)
		}
	}
	return open, nil
}

// FindNextAvailable scans fromDate and the following days, horizonDays in
// total, and returns the first free slot in date order then configured slot
// order. ok is false when the horizon is exhausted.
func (r *Resolver) FindNextAvailable(ctx context.Context, doctor *clinic.Doctor, fromDate string, horizonDays int) (Candidate, bool, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	start, err := calendar.ParseDate(fromDate)
	if err != nil {
		return Candidate{}, false, err
	}
	if len(doctor.TimeSlots) == 0 || len(doctor.AvailableDays) == 0 {
		return Candidate{}, false, nil
	}

	for i := 0; i < horizonDays; i++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, false, err
		}

		day := start.AddDate(0, 0, i)
		if !doctor.WorksOn(day.Weekday().String()) {
			continue
		}
		date := day.Format(calendar.DateLayout)

		open, err := r.ListOpenSlots(ctx, doctor, date)
		if err != nil {
			return Candidate{}, false, err
		}
		if len(open) > 0 {
			return Candidate{Date: date, Slot: open[0]}, true, nil
		}
	}
	return Candidate{}, false, nil
}
