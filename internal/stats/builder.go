package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/clinic"
)

// AppointmentSource is the read side of the ledger the builder needs.
type AppointmentSource interface {
	Query(ctx context.Context, f appointment.Filter) (appointment.Page, error)
}

// Directory resolves display names for the breakdowns.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*clinic.Department, error)
}

type Builder struct {
	source AppointmentSource
	dir    Directory
}

func NewBuilder(source AppointmentSource, dir Directory) *Builder {
	return &Builder{source: source, dir: dir}
}

// Build aggregates every appointment on date. Appointments whose doctor or
// department no longer resolves count toward the totals only.
func (b *Builder) Build(ctx context.Context, date string) (DailySnapshot, error) {
	snap := DailySnapshot{Date: date}

	departments := make(map[uuid.UUID]*DepartmentStats)
	doctors := make(map[uuid.UUID]*DoctorStats)
	missing := make(map[uuid.UUID]bool)

	for page := 1; ; page++ {
		res, err := b.source.Query(ctx, appointment.Filter{Date: date, Page: page, Limit: appointment.MaxPageLimit})
		if err != nil {
			return DailySnapshot{}, fmt.Errorf("load appointments for %s: %w", date, err)
		}

		for _, a := range res.Items {
			status := string(a.Status)
			snap.Counts.add(status)

			if ds, err := b.doctorStats(ctx, doctors, missing, a.DoctorID); err != nil {
				return DailySnapshot{}, err
			} else if ds != nil {
				ds.add(status)
			}

			if a.DepartmentID == nil {
				continue
			}
			if dep, err := b.departmentStats(ctx, departments, missing, *a.DepartmentID); err != nil {
				return DailySnapshot{}, err
			} else if dep != nil {
				dep.add(status)
			}
		}

		if page >= res.TotalPages {
			break
		}
	}

	for _, d := range departments {
		snap.Departments = append(snap.Departments, *d)
	}
	sort.Slice(snap.Departments, func(i, j int) bool {
		return snap.Departments[i].DepartmentName < snap.Departments[j].DepartmentName
	})
	for _, d := range doctors {
		snap.Doctors = append(snap.Doctors, *d)
	}
	sort.Slice(snap.Doctors, func(i, j int) bool {
		return snap.Doctors[i].DoctorName < snap.Doctors[j].DoctorName
	})
	return snap, nil
}

func (b *Builder) doctorStats(ctx context.Context, seen map[uuid.UUID]*DoctorStats, missing map[uuid.UUID]bool, id uuid.UUID) (*DoctorStats, error) {
	if ds, ok := seen[id]; ok {
		return ds, nil
	}
	if missing[id] {
		return nil, nil
	}
	doc, err := b.dir.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, clinic.ErrDoctorNotFound) {
			missing[id] = true
			return nil, nil
		}
		return nil, fmt.Errorf("load doctor %s: %w", id, err)
	}
	ds := &DoctorStats{DoctorID: doc.ID, DoctorName: doc.Name, Specialization: doc.Specialization}
	seen[id] = ds
	return ds, nil
}

func (b *Builder) departmentStats(ctx context.Context, seen map[uuid.UUID]*DepartmentStats, missing map[uuid.UUID]bool, id uuid.UUID) (*DepartmentStats, error) {
	if ds, ok := seen[id]; ok {
		return ds, nil
	}
	if missing[id] {
		return nil, nil
	}
	dep, err := b.dir.GetDepartment(ctx, id)
	if err != nil {
		if errors.Is(err, clinic.ErrDepartmentNotFound) {
			missing[id] = true
			return nil, nil
		}
		return nil, fmt.Errorf("load department %s: %w", id, err)
	}
	ds := &DepartmentStats{DepartmentID: dep.ID, DepartmentName: dep.Name}
	seen[id] = ds
	return ds, nil
}
