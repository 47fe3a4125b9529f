package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/careportal/triage/internal/platform/auth"
)

// Account is a registered user. Role never changes after registration.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Role         auth.Role `json:"role"`
	Name         string    `json:"name"`
	Mobile       string    `json:"mobile"`
	PasswordHash string    `json:"-"`
	IsVerified   bool      `json:"is_verified"`

	// Doctor profile.
	Specialization string `json:"specialization,omitempty"`
	LicenseNumber  string `json:"license_number,omitempty"`
	Hospital       string `json:"hospital,omitempty"`

	// Admin profile.
	AdminCode  string `json:"admin_id,omitempty"`
	Department string `json:"department,omitempty"`

	// Patient profile.
	Age                *int   `json:"age,omitempty"`
	BloodGroup         string `json:"blood_group,omitempty"`
	CurrentMedications string `json:"current_medications,omitempty"`
	PastSurgeries      string `json:"past_surgeries,omitempty"`
	KnownAllergies     string `json:"known_allergies,omitempty"`
	FamilyHistory      string `json:"family_history,omitempty"`
	CurrentSymptoms    string `json:"current_symptoms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the patient sub-record embedded in appointment listings.
type Summary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Mobile string    `json:"mobile"`
	Age    *int      `json:"age,omitempty"`
}

// DocumentKind names one of the credentials a doctor must upload.
type DocumentKind string

const (
	DocDegree        DocumentKind = "degree"
	DocCertification DocumentKind = "certification"
	DocIdentity      DocumentKind = "identity"
)

// RequiredDocuments must all be on file before a doctor can be verified.
var RequiredDocuments = []DocumentKind{DocDegree, DocCertification, DocIdentity}

func (k DocumentKind) Valid() bool {
	switch k {
	case DocDegree, DocCertification, DocIdentity:
		return true
	}
	return false
}

// Document is the latest upload of one kind for an account. The bytes live
// in the blob store under BlobID.
type Document struct {
	AccountID   uuid.UUID    `json:"account_id"`
	Kind        DocumentKind `json:"kind"`
	BlobID      string       `json:"blob_id"`
	FileName    string       `json:"file_name"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	UploadedAt  time.Time    `json:"uploaded_at"`
}

// VerificationSubmission is what a doctor is verified against.
type VerificationSubmission struct {
	Specialization string `json:"specialization"`
	DegreeDoc      string `json:"degree_doc"`
	CertDoc        string `json:"cert_doc"`
	IDDoc          string `json:"id_doc"`
}

// RegisterInput is the signup form. Which profile fields apply depends on
// Role.
type RegisterInput struct {
	Role     auth.Role `json:"role"`
	Name     string    `json:"name"`
	Mobile   string    `json:"mobile"`
	Password string    `json:"password"`

	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"license_number"`
	Hospital       string `json:"hospital"`

	AdminCode  string `json:"admin_id"`
	Department string `json:"department"`
	// InviteCode gates admin sign-up and is never stored.
	InviteCode string `json:"invite_code"`

	Age                *int   `json:"age"`
	BloodGroup         string `json:"blood_group"`
	CurrentMedications string `json:"current_medications"`
	PastSurgeries      string `json:"past_surgeries"`
	KnownAllergies     string `json:"known_allergies"`
	FamilyHistory      string `json:"family_history"`
	CurrentSymptoms    string `json:"current_symptoms"`
}

// LoginInput authenticates by mobile number and password.
type LoginInput struct {
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}
