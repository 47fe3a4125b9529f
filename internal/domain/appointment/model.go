package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/careportal/triage/internal/domain/account"
	"github.com/careportal/triage/internal/domain/inference"
	"github.com/careportal/triage/internal/domain/risk"
	"github.com/careportal/triage/internal/platform/auth"
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the legal next states. Completed and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Record is a booking. RiskSnapshot is the classification the booking was
// made from; it is copied at creation and never rewritten.
type Record struct {
	ID           uuid.UUID           `json:"id"`
	PatientID    uuid.UUID           `json:"patient_id"`
	DoctorID     uuid.UUID           `json:"doctor_id"`
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	Status       Status              `json:"status"`
	RiskSnapshot risk.Classification `json:"risk_snapshot"`
	Version      int                 `json:"version"`
	Patient      *account.Summary    `json:"patient,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// CreateInput is the booking request body.
type CreateInput struct {
	DoctorID   string             `json:"doctorId"`
	PatientID  string             `json:"patientId"`
	Date       string             `json:"date"`
	Time       string             `json:"time"`
	RiskLevel  string             `json:"risk_level"`
	RiskScore  *float64           `json:"risk_score"`
	TopFactors []inference.Factor `json:"top_factors"`
	Flags      []risk.Flag        `json:"flags"`
}

// Actor is the authenticated caller acting on appointments.
type Actor struct {
	ID   string
	Role auth.Role
}

// snapshot freezes the submitted classification. Slices are copied so later
// changes to the request cannot reach the stored record.
func snapshot(in CreateInput) (risk.Classification, bool) {
	var score float64
	if in.RiskScore != nil {
		score = risk.ClampScore(*in.RiskScore)
	}
	level := risk.Level(in.RiskLevel)
	switch level {
	case "":
		level = risk.LevelFor(score)
	case risk.Low, risk.Medium, risk.High:
	default:
		return risk.Classification{}, false
	}

	c := risk.Classification{
		Score:      score,
		Level:      level,
		TopFactors: make([]inference.Factor, len(in.TopFactors)),
		Flags:      make([]risk.Flag, len(in.Flags)),
	}
	copy(c.TopFactors, in.TopFactors)
	copy(c.Flags, in.Flags)
	return c, true
}
