package qr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// State of a verification session
type State string

const (
	StateIdle           State = "IDLE"
	StateScanningCamera State = "SCANNING_CAMERA"
	StateDecoding       State = "DECODING"
	StateVerified       State = "VERIFIED"
	StateNotFound       State = "NOT_FOUND"
	StateDispensed      State = "DISPENSED"
)

var (
	// ErrInvalidState is returned for an operation not allowed in the current state
	ErrInvalidState = errors.New("operation not allowed in current verification state")
	// ErrAlreadyDispensed is returned when the verified prescription was dispensed before
	ErrAlreadyDispensed = errors.New("prescription has already been dispensed")
	// ErrNotPending is returned when the verified prescription is in any other non-pending state
	ErrNotPending = errors.New("prescription is not pending")
)

// PrescriptionLookup is the part of the record store the verifier needs
type PrescriptionLookup interface {
	FindByToken(ctx context.Context, token string) (*types.Prescription, error)
	UpdatePrescription(ctx context.Context, id string, update types.PrescriptionUpdate) (*types.Prescription, error)
}

// Verifier runs one pharmacist verification session.
// Idle -> ScanningCamera, which alternates with Decoding once per frame until
// a code reads, then Decoding -> Verified|NotFound and Verified -> Dispensed.
type Verifier struct {
	lookup   PrescriptionLookup
	scanner  *Scanner
	logger   *logrus.Entry
	recorder Recorder

	mu           sync.Mutex
	state        State
	prescription *types.Prescription
	cancelScan   context.CancelFunc
}

// NewVerifier creates a verifier in the Idle state. scanner may be nil when
// tokens are only entered manually.
func NewVerifier(lookup PrescriptionLookup, scanner *Scanner, log *logger.Logger, recorder Recorder) *Verifier {
	return &Verifier{
		lookup:   lookup,
		scanner:  scanner,
		logger:   log.WithComponent("qr_verifier"),
		recorder: recorder,
		state:    StateIdle,
	}
}

// State returns the current state
func (v *Verifier) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Prescription returns a copy of the verified prescription, if any
func (v *Verifier) Prescription() *types.Prescription {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.prescription == nil {
		return nil
	}
	p := v.prescription.Clone()
	return &p
}

// OpenCamera starts a scan session and blocks until a code is decoded and
// verified, the session is closed, or ctx ends. Closing or cancelling returns
// the verifier to Idle.
func (v *Verifier) OpenCamera(ctx context.Context, camera Camera) (*types.Prescription, error) {
	if v.scanner == nil {
		return nil, fmt.Errorf("%w: no scanner configured", ErrCameraUnavailable)
	}

	v.mu.Lock()
	if v.state == StateScanningCamera || v.state == StateDecoding {
		v.mu.Unlock()
		return nil, ErrInvalidState
	}
	scanCtx, cancel := context.WithCancel(ctx)
	v.state = StateScanningCamera
	v.prescription = nil
	v.cancelScan = cancel
	v.mu.Unlock()

	token, err := v.scanner.scan(scanCtx, camera, func(active bool) {
		if active {
			v.setState(StateDecoding)
		} else {
			v.setState(StateScanningCamera)
		}
	})

	cancel()
	v.mu.Lock()
	v.cancelScan = nil
	if err != nil {
		v.state = StateIdle
		v.mu.Unlock()
		return nil, err
	}
	v.state = StateDecoding
	v.mu.Unlock()
	return v.resolve(ctx, token)
}

// Close ends a running scan session; it is safe to call at any time
func (v *Verifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancelScan != nil {
		v.cancelScan()
		v.cancelScan = nil
	}
}

// Verify looks up a manually entered token. A nil prescription with a nil
// error means NotFound. It is refused while a camera session is running.
func (v *Verifier) Verify(ctx context.Context, token string) (*types.Prescription, error) {
	v.mu.Lock()
	if v.state == StateScanningCamera || v.state == StateDecoding {
		v.mu.Unlock()
		return nil, ErrInvalidState
	}
	v.state = StateDecoding
	v.prescription = nil
	v.mu.Unlock()
	return v.resolve(ctx, token)
}

// resolve looks token up; the caller has already moved the state to Decoding
func (v *Verifier) resolve(ctx context.Context, token string) (*types.Prescription, error) {
	token = strings.TrimSpace(token)
	p, err := v.lookup.FindByToken(ctx, token)
	if err != nil {
		v.setState(StateIdle)
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if p == nil {
		v.state = StateNotFound
		v.logger.WithField("token", token).Info("Verification token not found")
		v.record("not_found")
		return nil, nil
	}

	v.state = StateVerified
	v.prescription = p
	v.logger.WithFields(logrus.Fields{"prescription_id": p.ID, "status": p.Status}).Info("Prescription verified")
	v.record("verified")
	out := p.Clone()
	return &out, nil
}

// Dispense marks the verified prescription DISPENSED.
// A prescription that is no longer pending is refused before the store is called.
func (v *Verifier) Dispense(ctx context.Context) (*types.Prescription, error) {
	v.mu.Lock()
	if v.state != StateVerified || v.prescription == nil {
		v.mu.Unlock()
		return nil, ErrInvalidState
	}
	current := v.prescription.Clone()
	v.mu.Unlock()

	switch current.Status {
	case types.StatusPending:
	case types.StatusDispensed:
		v.dispenseOutcome("rejected")
		return nil, ErrAlreadyDispensed
	default:
		v.dispenseOutcome("rejected")
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, current.Status)
	}

	status := types.StatusDispensed
	updated, err := v.lookup.UpdatePrescription(ctx, current.ID, types.PrescriptionUpdate{Status: &status})
	if err != nil {
		v.dispenseOutcome("error")
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if updated == nil {
		v.state = StateNotFound
		v.prescription = nil
		v.dispenseOutcome("not_found")
		return nil, nil
	}

	v.state = StateDispensed
	v.prescription = updated
	v.logger.WithField("prescription_id", updated.ID).Info("Prescription dispensed")
	v.dispenseOutcome("dispensed")
	out := updated.Clone()
	return &out, nil
}

// Reset returns a finished session to Idle
func (v *Verifier) Reset() {
	v.Close()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = StateIdle
	v.prescription = nil
}

func (v *Verifier) setState(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = s
}

func (v *Verifier) record(outcome string) {
	if v.recorder != nil {
		v.recorder.RecordQRScan(outcome)
	}
}

func (v *Verifier) dispenseOutcome(outcome string) {
	if v.recorder != nil {
		v.recorder.RecordDispense(outcome)
	}
}
