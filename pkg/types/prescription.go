package types

import (
	"fmt"
	"strings"
)

// PrescriptionStatus represents the dispensing lifecycle of a prescription
type PrescriptionStatus string

const (
	StatusPending   PrescriptionStatus = "PENDING"
	StatusDispensed PrescriptionStatus = "DISPENSED"
	StatusCanceled  PrescriptionStatus = "CANCELED"
)

// Valid reports whether the status is a known status
func (s PrescriptionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDispensed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s
func (s PrescriptionStatus) Terminal() bool {
	return s == StatusDispensed || s == StatusCanceled
}

// TransitionStatus validates a status change.
// PENDING may move to DISPENSED or CANCELED; terminal states are final.
func TransitionStatus(from, to PrescriptionStatus) error {
	if !to.Valid() {
		return NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("unknown prescription status %q", to), nil)
	}
	if from == to {
		return NewConflictError(ErrCodeInvalidTransition, fmt.Sprintf("prescription is already %s", from))
	}
	if from.Terminal() {
		return NewConflictError(ErrCodeInvalidTransition, fmt.Sprintf("prescription is %s and cannot become %s", from, to))
	}
	if to == StatusPending {
		return NewConflictError(ErrCodeInvalidTransition, "prescription cannot return to PENDING")
	}
	return nil
}

// Medication is a single line of a prescription
type Medication struct {
	Name         string `json:"name" validate:"required"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"` // e.g. "1-0-1"
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
	ReminderSent *bool  `json:"reminderSent,omitempty"`
}

// DoseSlots decodes the morning-afternoon-evening frequency code: morning
// when it starts with "1", afternoon when its second dash-separated field is
// "1", evening when it ends with "1". "1-0-1" yields [true false true].
func (m Medication) DoseSlots() [3]bool {
	parts := strings.Split(m.Frequency, "-")
	return [3]bool{
		strings.HasPrefix(m.Frequency, "1"),
		len(parts) > 1 && parts[1] == "1",
		strings.HasSuffix(m.Frequency, "1"),
	}
}

// Prescription represents an issued prescription.
// The JSON layout matches the persisted prescriptions collection.
type Prescription struct {
	ID           string             `json:"id"`
	PatientEmail string             `json:"patientEmail"`
	DoctorID     string             `json:"doctorId"`
	DoctorName   string             `json:"doctorName"`
	DoctorEmail  string             `json:"doctorEmail"`
	Date         string             `json:"date"`
	Diagnosis    string             `json:"diagnosis"`
	Medications  []Medication       `json:"medications"`
	Status       PrescriptionStatus `json:"status"`
	Notes        string             `json:"notes,omitempty"`
	QRCode       string             `json:"qrCode"`
}

// Clone returns a deep copy so callers never share the stored medication slice
func (p Prescription) Clone() Prescription {
	out := p
	if p.Medications != nil {
		out.Medications = make([]Medication, len(p.Medications))
		for i, m := range p.Medications {
			if m.ReminderSent != nil {
				sent := *m.ReminderSent
				m.ReminderSent = &sent
			}
			out.Medications[i] = m
		}
	}
	return out
}

// PrescriptionUpdate is the set of fields that may change after issuance
type PrescriptionUpdate struct {
	Status *PrescriptionStatus `json:"status,omitempty"`
	Notes  *string             `json:"notes,omitempty"`
}

// IssueRequest carries the doctor-entered fields of a new prescription
type IssueRequest struct {
	PatientEmail string       `json:"patientEmail" validate:"required,email"`
	Diagnosis    string       `json:"diagnosis" validate:"required"`
	Medications  []Medication `json:"medications" validate:"required,min=1,dive"`
	Notes        string       `json:"notes,omitempty"`
}

// InteractionSeverity grades a drug interaction
type InteractionSeverity string

const (
	SeverityLow      InteractionSeverity = "low"
	SeverityModerate InteractionSeverity = "moderate"
	SeverityHigh     InteractionSeverity = "high"
)

// Valid reports whether the severity is one of low, moderate or high
func (s InteractionSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh:
		return true
	}
	return false
}

// DrugInteraction is an advisory finding returned by the interaction check
type DrugInteraction struct {
	Severity       InteractionSeverity `json:"severity"`
	Description    string              `json:"description"`
	Recommendation string              `json:"recommendation"`
}
