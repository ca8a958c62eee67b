package types

import (
	"fmt"
	"strings"
)

// UserRole represents the different portals a user can sign in to
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleDoctor     UserRole = "DOCTOR"
	RolePatient    UserRole = "PATIENT"
	RolePharmacist UserRole = "PHARMACIST"
)

// AllRoles lists the roles in the order the login portal offers them
var AllRoles = []UserRole{RoleDoctor, RolePatient, RolePharmacist, RoleAdmin}

// Valid reports whether the role is one of the known roles
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient, RolePharmacist:
		return true
	}
	return false
}

// ParseUserRole parses a role name, ignoring case
func ParseUserRole(s string) (UserRole, error) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("unknown role %q", s), nil)
	}
	return role, nil
}

// User represents a registered account.
// The JSON layout matches the persisted users collection.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	Specialty string   `json:"specialty,omitempty"`
	Phone     string   `json:"phone,omitempty"`
}

// PatientRegistrationRequest represents patient self-registration data
type PatientRegistrationRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
	// Password is accepted for parity with the registration form and never stored.
	Password string `json:"password,omitempty"`
}

// CreateUserRequest represents an admin-initiated account creation
type CreateUserRequest struct {
	Name      string   `json:"name" validate:"required,min=2,max=100"`
	Email     string   `json:"email" validate:"required,email"`
	Role      UserRole `json:"role" validate:"required,oneof=ADMIN DOCTOR PATIENT PHARMACIST"`
	Specialty string   `json:"specialty,omitempty"`
	Phone     string   `json:"phone,omitempty"`
}

// Credentials represents login form data.
// Password is never verified: sign-in trusts the email and selected role.
type Credentials struct {
	Email    string   `json:"email" validate:"required,email"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN DOCTOR PATIENT PHARMACIST"`
	Password string   `json:"password,omitempty"`
}

// DemoEmail returns the seeded account email suggested on a failed login
func DemoEmail(role UserRole) string {
	switch role {
	case RoleDoctor:
		return "doctor@medscript.com"
	case RolePatient:
		return "patient@gmail.com"
	case RolePharmacist:
		return "pharmacist@medscript.com"
	default:
		return "admin@medscript.com"
	}
}
