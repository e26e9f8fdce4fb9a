package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/schedule"
)

// MemoryRepository is an in-memory Repository with the same atomicity
// contract as the Postgres implementation: the overlap check and insert
// happen under one lock. Used by tests and local tooling.
type MemoryRepository struct {
	mu           sync.RWMutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// PutDoctor upserts a doctor for test setup.
func (m *MemoryRepository) PutDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := d
	m.doctors[d.ID] = &copied
}

// PutPatient upserts a patient for test setup.
func (m *MemoryRepository) PutPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := p
	m.patients[p.ID] = &copied
}

func (m *MemoryRepository) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *MemoryRepository) UpdateDoctorSchedule(_ context.Context, id uuid.UUID, week schedule.WeekSchedule, slotMinutes int) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.Week = week
	d.SlotMinutes = slotMinutes
	d.UpdatedAt = time.Now()

	copied := *d
	return &copied, nil
}

func (m *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryRepository) FindOverlapping(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Status.LedgerActive() {
			continue
		}
		if a.Overlaps(from, to) {
			result = append(result, *a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})

	return result, nil
}

func (m *MemoryRepository) InsertIfAvailable(_ context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := appt.End()
	for _, existing := range m.appointments {
		if existing.DoctorID != appt.DoctorID || !existing.Status.LedgerActive() {
			continue
		}
		if existing.Overlaps(appt.ScheduledAt, end) {
			return nil, ErrSlotConflict
		}
	}

	now := time.Now()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	copied := appt
	m.appointments[appt.ID] = &copied

	out := appt
	return &out, nil
}

func (m *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()

	copied := *a
	return &copied, nil
}

func (m *MemoryRepository) CancelAppointment(_ context.Context, id uuid.UUID, from Status, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	now := time.Now()
	a.Status = StatusCancelled
	a.CancelReason = &reason
	a.CancelledAt = &now
	a.UpdatedAt = now

	copied := *a
	return &copied, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Appointment
	for _, a := range m.appointments {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && a.ScheduledAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !a.ScheduledAt.Before(filter.To) {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}
