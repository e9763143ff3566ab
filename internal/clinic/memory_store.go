package clinic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointments/internal/calendar"
)

// MemoryStore keeps reference data in maps. Tests and the demo mode use it.
type MemoryStore struct {
	mu          sync.RWMutex
	clock       calendar.Clock
	seq         int64
	doctors     map[uuid.UUID]Doctor
	departments map[uuid.UUID]Department
	patients    map[uuid.UUID]Patient
}

func NewMemoryStore(clock calendar.Clock) *MemoryStore {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &MemoryStore{
		clock:       clock,
		doctors:     make(map[uuid.UUID]Doctor),
		departments: make(map[uuid.UUID]Department),
		patients:    make(map[uuid.UUID]Patient),
	}
}

// PutDoctor inserts or replaces a doctor, assigning an ID when empty.
func (s *MemoryStore) PutDoctor(d Doctor) Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DoctorActive
	}
	s.doctors[d.ID] = d
	return d
}

func (s *MemoryStore) PutDepartment(d Department) Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.departments[d.ID] = d
	return d
}

func (s *MemoryStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (s *MemoryStore) GetDepartment(_ context.Context, id uuid.UUID) (*Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &d, nil
}

func (s *MemoryStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindPatientByHumanID(_ context.Context, patientID string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.PatientID == patientID {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *MemoryStore) FindPatientByContactOrEmail(_ context.Context, email, contact string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// oldest match first, like the SQL ORDER BY created_at
	var found *Patient
	for _, p := range s.patients {
		if (email != "" && p.Email == email) || (contact != "" && p.Contact == contact) {
			if found == nil || p.CreatedAt.Before(found.CreatedAt) {
				cp := p
				found = &cp
			}
		}
	}
	if found == nil {
		return nil, ErrPatientNotFound
	}
	return found, nil
}

func (s *MemoryStore) CreatePatient(_ context.Context, prof Profile) (*Patient, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.clock.Now()
	p := Patient{
		ID:               uuid.New(),
		PatientID:        FormatPatientID(now.Year(), s.seq),
		Name:             prof.Name,
		Email:            prof.Email,
		Contact:          prof.Contact,
		Age:              prof.Age,
		Gender:           prof.Gender,
		Address:          prof.Address,
		EmergencyContact: prof.EmergencyContact,
		CreatedAt:        now,
	}
	s.patients[p.ID] = p
	return &p, nil
}

func (s *MemoryStore) CountPatientsCreatedBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.patients {
		if p.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}
