package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Ledger against the appointments and reminder_log
// tables owned by the booking store.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) FindConfirmedInWindow(ctx context.Context, from, to time.Time) ([]Target, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.clinic_id, a.scheduled_at, d.name, p.name
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'confirmed'
		  AND a.scheduled_at >= $1
		  AND a.scheduled_at < $2
		ORDER BY a.scheduled_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query confirmed window: %w", err)
	}
	defer rows.Close()

	var result []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(
			&t.AppointmentID,
			&t.PatientID,
			&t.DoctorID,
			&t.ClinicID,
			&t.ScheduledAt,
			&t.DoctorName,
			&t.PatientName,
		); err != nil {
			return nil, fmt.Errorf("scan reminder target: %w", err)
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) AlreadyFired(ctx context.Context, appointmentID uuid.UUID, kind Kind) (bool, error) {
	var fired bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_log
			WHERE appointment_id = $1 AND kind = $2
		)
	`, appointmentID, kind).Scan(&fired)
	if err != nil {
		return false, fmt.Errorf("check reminder log: %w", err)
	}
	return fired, nil
}

func (s *PgStore) RecordFired(ctx context.Context, appointmentID uuid.UUID, kind Kind) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminder_log (appointment_id, kind, fired_at)
		VALUES ($1, $2, now())
		ON CONFLICT (appointment_id, kind) DO NOTHING
	`, appointmentID, kind)
	if err != nil {
		return fmt.Errorf("insert reminder log: %w", err)
	}
	return nil
}

func (s *PgStore) PruneFiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM reminder_log rl
		USING appointments a
		WHERE a.id = rl.appointment_id
		  AND a.scheduled_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune reminder log: %w", err)
	}
	return tag.RowsAffected(), nil
}
