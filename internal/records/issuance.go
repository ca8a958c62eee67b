package records

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// TokenPrefix starts every verification token
const TokenPrefix = "VERIFY-"

const tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateVerificationToken returns VERIFY- followed by six random base-36
// characters in upper case.
func GenerateVerificationToken() (string, error) {
	var b strings.Builder
	b.WriteString(TokenPrefix)

	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate verification token: %w", err)
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// RegisterPatient creates a patient account. Unlike AddUser it refuses an
// email that is already registered under any role.
func (s *Store) RegisterPatient(ctx context.Context, req types.PatientRegistrationRequest) (*types.User, error) {
	user := types.User{
		ID:    s.newID(),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
		Role:  types.RolePatient,
	}
	if err := s.appendUser(ctx, user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser adds an account on behalf of an administrator.
// Specialty is kept for doctors only.
func (s *Store) CreateUser(ctx context.Context, req types.CreateUserRequest) (*types.User, error) {
	if !req.Role.Valid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown role %q", req.Role), nil)
	}

	user := types.User{
		ID:    s.newID(),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Role:  req.Role,
		Phone: strings.TrimSpace(req.Phone),
	}
	if req.Role == types.RoleDoctor {
		user.Specialty = strings.TrimSpace(req.Specialty)
	}
	if err := s.AddUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// IssuePrescription builds a PENDING prescription for req on behalf of doctor
// and saves it at the head of the collection.
func (s *Store) IssuePrescription(ctx context.Context, doctor types.User, req types.IssueRequest) (*types.Prescription, error) {
	if len(req.Medications) == 0 {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "at least one medication is required", nil)
	}

	token, err := s.newToken()
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to generate verification token", err)
	}

	p := types.Prescription{
		ID:           "RX-" + s.newID(),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		DoctorID:     doctor.ID,
		DoctorName:   doctor.Name,
		DoctorEmail:  doctor.Email,
		Date:         s.now().UTC().Format(isoTimestamp),
		Diagnosis:    req.Diagnosis,
		Medications:  append([]types.Medication(nil), req.Medications...),
		Status:       types.StatusPending,
		Notes:        req.Notes,
		QRCode:       token,
	}
	if err := s.SavePrescription(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}
