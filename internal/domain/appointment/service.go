package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/domain/account"
	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
	"github.com/careportal/triage/internal/platform/telemetry"
)

// Directory resolves the accounts an appointment refers to.
type Directory interface {
	Get(ctx context.Context, id string) (*account.Account, error)
}

type Service struct {
	repo     Repository
	accounts Directory
	logger   zerolog.Logger
	metrics  *telemetry.Provider
}

// NewService wires the appointment service. metrics may be nil.
func NewService(repo Repository, accounts Directory, logger zerolog.Logger, metrics *telemetry.Provider) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		logger:   logger.With().Str("component", "appointment").Logger(),
		metrics:  metrics,
	}
}

// lookup fetches a referenced account and checks its role. Unknown or
// mismatched references are input errors, not missing records.
func (s *Service) lookup(ctx context.Context, op, field, id string, role auth.Role) (*account.Account, error) {
	a, err := s.accounts.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
		return nil, apperr.Validation(op, "%s does not refer to a known %s", field, role)
	}
	if err != nil {
		return nil, err
	}
	if a.Role != role {
		return nil, apperr.Validation(op, "%s does not refer to a %s", field, role)
	}
	return a, nil
}

// Create books an appointment in the pending state. Patients always book
// for themselves; doctors and admins name the patient.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Record, error) {
	const op = "appointment.create"

	doctorID, err := uuid.Parse(strings.TrimSpace(in.DoctorID))
	if err != nil {
		return nil, apperr.Validation(op, "doctorId is required")
	}
	date := strings.TrimSpace(in.Date)
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.Validation(op, "date is required as YYYY-MM-DD")
	}
	clock := strings.TrimSpace(in.Time)
	if _, err := time.Parse(TimeLayout, clock); err != nil {
		return nil, apperr.Validation(op, "time is required as HH:MM")
	}

	patientRef := strings.TrimSpace(in.PatientID)
	if actor.Role == auth.RolePatient {
		patientRef = actor.ID
	}
	patientID, err := uuid.Parse(patientRef)
	if err != nil {
		return nil, apperr.Validation(op, "patientId is required")
	}

	snap, ok := snapshot(in)
	if !ok {
		return nil, apperr.Validation(op, "risk_level must be one of Low, Medium, High")
	}

	doctor, err := s.lookup(ctx, op, "doctorId", doctorID.String(), auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if !doctor.IsVerified {
		return nil, apperr.Validation(op, "doctor is not yet verified")
	}
	patient, err := s.lookup(ctx, op, "patientId", patientID.String(), auth.RolePatient)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		PatientID:    patientID,
		DoctorID:     doctorID,
		Date:         date,
		Time:         clock,
		Status:       StatusPending,
		RiskSnapshot: snap,
		Version:      1,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	rec.Patient = &account.Summary{ID: patient.ID, Name: patient.Name, Mobile: patient.Mobile, Age: patient.Age}

	s.metrics.RecordTransition("none", string(StatusPending))
	s.logger.Info().
		Str("appointment_id", rec.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("patient_id", patientID.String()).
		Str("risk_level", string(snap.Level)).
		Msg("appointment booked")
	return rec, nil
}

// Get returns a record visible to actor: its patient, its doctor, or any
// admin.
func (s *Service) Get(ctx context.Context, id string, actor Actor) (*Record, error) {
	const op = "appointment.get"
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound(op, id)
	}
	rec, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Role == auth.RoleAdmin,
		actor.Role == auth.RoleDoctor && rec.DoctorID.String() == actor.ID,
		actor.Role == auth.RolePatient && rec.PatientID.String() == actor.ID:
		return rec, nil
	}
	return nil, apperr.Forbidden(op, "not a participant of this appointment", auth.LandingFor(actor.Role))
}

// Transition moves a record along one legal edge. Only the assigned doctor
// may do so. expectedVersion, when positive, must equal the stored
// version; the write itself is conditional on the version read here.
func (s *Service) Transition(ctx context.Context, id string, to Status, actor Actor, expectedVersion int) (*Record, error) {
	const op = "appointment.transition"
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound(op, id)
	}
	if !to.Valid() {
		return nil, apperr.Validation(op, "status must be one of pending, confirmed, completed, cancelled")
	}

	rec, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleDoctor || rec.DoctorID.String() != actor.ID {
		return nil, apperr.Forbidden(op, "only the assigned doctor may update this appointment", auth.LandingFor(actor.Role))
	}
	if expectedVersion > 0 && expectedVersion != rec.Version {
		return nil, apperr.Conflict(op, id, "appointment was modified concurrently")
	}
	if !CanTransition(rec.Status, to) {
		return nil, apperr.InvalidTransition(op, id, string(rec.Status), string(to))
	}

	updated, err := s.repo.UpdateStatus(ctx, uid, to, rec.Version)
	if err != nil {
		return nil, err
	}
	updated.Patient = rec.Patient

	s.metrics.RecordTransition(string(rec.Status), string(to))
	s.logger.Info().
		Str("appointment_id", id).
		Str("from", string(rec.Status)).
		Str("to", string(to)).
		Int("version", updated.Version).
		Msg("appointment transitioned")
	return updated, nil
}

// ListByDoctor returns a doctor's queue ordered by date then time.
func (s *Service) ListByDoctor(ctx context.Context, doctorID string) ([]*Record, error) {
	uid, err := uuid.Parse(doctorID)
	if err != nil {
		return nil, apperr.Validation("appointment.list_by_doctor", "invalid doctor id")
	}
	return s.repo.ListByDoctor(ctx, uid)
}

// ListByPatient returns a patient's bookings ordered by date then time.
func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	uid, err := uuid.Parse(patientID)
	if err != nil {
		return nil, apperr.Validation("appointment.list_by_patient", "invalid patient id")
	}
	return s.repo.ListByPatient(ctx, uid)
}
