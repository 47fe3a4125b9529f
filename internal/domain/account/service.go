package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/auth"
	"github.com/careportal/triage/internal/platform/blobstore"
)

// TxRunner runs fn in a transaction that repository calls made with the
// passed context join.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

const minPasswordLen = 8

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

type Service struct {
	repo     Repository
	blobs    blobstore.BlobStore
	tx       TxRunner
	logger   zerolog.Logger
	hashCost int
	// dummyHash is compared against when the mobile number is unknown so a
	// failed login costs the same either way.
	dummyHash []byte
	// adminInvite must accompany admin sign-ups; empty disables them.
	adminInvite string
}

// Option adjusts a Service at construction.
type Option func(*Service)

// WithAdminInviteCode enables admin self-registration for callers who
// present code.
func WithAdminInviteCode(code string) Option {
	return func(s *Service) { s.adminInvite = strings.TrimSpace(code) }
}

// NewService wires the account service. tx may be nil, in which case
// multi-step writes run without a transaction. Admin registration stays
// closed unless WithAdminInviteCode is given.
func NewService(repo Repository, blobs blobstore.BlobStore, tx TxRunner, logger zerolog.Logger, opts ...Option) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	s := &Service{
		repo:     repo,
		blobs:    blobs,
		tx:       tx,
		logger:   logger.With().Str("component", "account").Logger(),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.hashCost)
	return s
}

func parseID(op, id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation(op, "invalid account id")
	}
	return uid, nil
}

func normalizeMobile(m string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(m))
}

func validateRegistration(op string, in *RegisterInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Mobile = normalizeMobile(in.Mobile)

	if !in.Role.Valid() {
		return apperr.Validation(op, "role must be one of patient, doctor, admin")
	}
	if in.Name == "" {
		return apperr.Validation(op, "name is required")
	}
	if !mobilePattern.MatchString(in.Mobile) {
		return apperr.Validation(op, "mobile must be 7 to 15 digits")
	}
	if len(in.Password) < minPasswordLen {
		return apperr.Validation(op, "password must be at least %d characters", minPasswordLen)
	}
	switch in.Role {
	case auth.RoleDoctor:
		if strings.TrimSpace(in.LicenseNumber) == "" {
			return apperr.Validation(op, "license_number is required for doctors")
		}
	case auth.RoleAdmin:
		if strings.TrimSpace(in.AdminCode) == "" {
			return apperr.Validation(op, "admin_id is required for admins")
		}
	case auth.RolePatient:
		if in.Age != nil && (*in.Age < 0 || *in.Age > 130) {
			return apperr.Validation(op, "age must be between 0 and 130")
		}
	}
	return nil
}

// Register creates an account. Doctors start unverified; patients and
// admins are verified on creation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	const op = "account.register"
	if err := validateRegistration(op, &in); err != nil {
		return nil, err
	}
	if in.Role == auth.RoleAdmin {
		if err := s.checkAdminInvite(op, in.InviteCode); err != nil {
			return nil, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	a := &Account{
		Role:         in.Role,
		Name:         in.Name,
		Mobile:       in.Mobile,
		PasswordHash: string(hash),
		IsVerified:   in.Role != auth.RoleDoctor,
	}
	switch in.Role {
	case auth.RoleDoctor:
		a.Specialization = strings.TrimSpace(in.Specialization)
		a.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
		a.Hospital = strings.TrimSpace(in.Hospital)
	case auth.RoleAdmin:
		a.AdminCode = strings.TrimSpace(in.AdminCode)
		a.Department = strings.TrimSpace(in.Department)
	case auth.RolePatient:
		a.Age = in.Age
		a.BloodGroup = strings.TrimSpace(in.BloodGroup)
		a.CurrentMedications = in.CurrentMedications
		a.PastSurgeries = in.PastSurgeries
		a.KnownAllergies = in.KnownAllergies
		a.FamilyHistory = in.FamilyHistory
		a.CurrentSymptoms = in.CurrentSymptoms
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("role", string(a.Role)).Msg("account registered")
	return a, nil
}

func (s *Service) checkAdminInvite(op, code string) error {
	if s.adminInvite == "" {
		return apperr.Forbidden(op, "admin registration is disabled", auth.LoginPath)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(s.adminInvite)) != 1 {
		s.logger.Warn().Str("op", op).Msg("admin registration with invalid invite code")
		return apperr.Forbidden(op, "invalid admin invite code", auth.LoginPath)
	}
	return nil
}

// Authenticate checks a mobile/password pair. Unknown numbers and wrong
// passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*Account, error) {
	const op = "account.login"
	mobile := normalizeMobile(in.Mobile)
	if mobile == "" || in.Password == "" {
		return nil, apperr.Validation(op, "mobile and password are required")
	}
	invalid := apperr.Unauthenticated(op, "invalid mobile number or password", "")

	a, err := s.repo.GetByMobile(ctx, mobile)
	if errors.Is(err, apperr.ErrNotFound) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(in.Password)) != nil {
		return nil, invalid
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	uid, err := parseID("account.get", id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, uid)
}

// IsVerified reads the current verification flag from the store.
func (s *Service) IsVerified(ctx context.Context, userID string) (bool, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return a.IsVerified, nil
}

// Recent lists accounts newest first.
func (s *Service) Recent(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	return s.repo.ListRecent(ctx, limit, offset)
}

// UploadDocument stores one credential for a doctor, replacing any earlier
// upload of the same kind.
func (s *Service) UploadDocument(ctx context.Context, accountID string, kind DocumentKind, fileName, contentType string, content io.Reader) (*Document, error) {
	const op = "account.upload_document"
	uid, err := parseID(op, accountID)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, apperr.Validation(op, "kind must be one of degree, certification, identity")
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		OwnerID:     accountID,
		Kind:        string(kind),
		FileName:    fileName,
		ContentType: contentType,
	}, content)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge),
			errors.Is(err, blobstore.ErrEmptyFile),
			errors.Is(err, blobstore.ErrInvalidContentType),
			errors.Is(err, blobstore.ErrMissingFileName):
			return nil, apperr.Validation(op, "%s", err.Error())
		}
		return nil, apperr.Internal(op, err)
	}

	doc := &Document{
		AccountID:   uid,
		Kind:        kind,
		BlobID:      meta.ID,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
	}
	var replaced string
	err = s.tx(ctx, func(ctx context.Context) error {
		prev, err := s.repo.GetDocument(ctx, uid, kind)
		switch {
		case err == nil:
			replaced = prev.BlobID
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		return s.repo.UpsertDocument(ctx, doc)
	})
	if err != nil {
		s.removeBlob(ctx, meta.ID)
		return nil, err
	}
	if replaced != "" && replaced != meta.ID {
		s.removeBlob(ctx, replaced)
	}

	s.logger.Info().Str("account_id", accountID).Str("kind", string(kind)).Str("blob_id", meta.ID).Msg("verification document stored")
	return doc, nil
}

func (s *Service) removeBlob(ctx context.Context, id string) {
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", id).Msg("failed to remove blob")
	}
}

// Documents lists what a doctor has uploaded so far.
func (s *Service) Documents(ctx context.Context, accountID string) ([]*Document, error) {
	uid, err := parseID("account.documents", accountID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, uid)
}

// OpenDocument returns the stored bytes of one uploaded credential. The
// caller must close the reader.
func (s *Service) OpenDocument(ctx context.Context, accountID string, kind DocumentKind) (io.ReadCloser, *Document, error) {
	const op = "account.open_document"
	uid, err := parseID(op, accountID)
	if err != nil {
		return nil, nil, err
	}
	if !kind.Valid() {
		return nil, nil, apperr.Validation(op, "kind must be one of degree, certification, identity")
	}
	doc, err := s.repo.GetDocument(ctx, uid, kind)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Download(ctx, doc.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound(op, accountID+"/"+string(kind))
	}
	if err != nil {
		return nil, nil, apperr.Internal(op, err)
	}
	return rc, doc, nil
}

// SubmitVerification marks a doctor verified once all required documents
// are on file. The document check and the flag update share a transaction.
func (s *Service) SubmitVerification(ctx context.Context, accountID, specialization string) (*VerificationSubmission, error) {
	const op = "account.submit_verification"
	uid, err := parseID(op, accountID)
	if err != nil {
		return nil, err
	}
	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return nil, apperr.Validation(op, "specialization is required")
	}

	sub := &VerificationSubmission{Specialization: specialization}
	err = s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, uid)
		if err != nil {
			return err
		}
		if a.Role != auth.RoleDoctor {
			return apperr.Forbidden(op, "only doctors can be verified", auth.LandingFor(a.Role))
		}
		docs, err := s.repo.ListDocuments(ctx, uid)
		if err != nil {
			return err
		}
		byKind := make(map[DocumentKind]string, len(docs))
		for _, d := range docs {
			byKind[d.Kind] = d.BlobID
		}
		var missing []string
		for _, k := range RequiredDocuments {
			if byKind[k] == "" {
				missing = append(missing, string(k))
			}
		}
		if len(missing) > 0 {
			return apperr.Validation(op, "missing documents: %s", strings.Join(missing, ", "))
		}
		sub.DegreeDoc = byKind[DocDegree]
		sub.CertDoc = byKind[DocCertification]
		sub.IDDoc = byKind[DocIdentity]
		return s.repo.MarkVerified(ctx, uid, specialization)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("account_id", accountID).Str("specialization", specialization).Msg("doctor verified")
	return sub, nil
}
