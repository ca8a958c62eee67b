// Package records implements the record store: the Users and Prescriptions
// collections serialized as JSON arrays in a key-value backend.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/storage"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// Storage keys of the persisted layout
const (
	UsersKey         = "medscript_users"
	PrescriptionsKey = "medscript_prescriptions"
	SessionKey       = "medscript_user"
	InventoryKey     = "medscript_inventory"
)

// isoTimestamp matches the millisecond ISO 8601 form used for prescription dates
const isoTimestamp = "2006-01-02T15:04:05.000Z07:00"

// SeedUsers are written when the users collection does not exist yet
var SeedUsers = []types.User{
	{ID: "1", Name: "Dr. Wilson", Role: types.RoleDoctor, Email: "doctor@medscript.com", Specialty: "General Physician"},
	{ID: "2", Name: "John Patient", Role: types.RolePatient, Email: "patient@gmail.com", Phone: "+91 9876543210"},
	{ID: "3", Name: "Pharma Hub", Role: types.RolePharmacist, Email: "pharmacist@medscript.com"},
	{ID: "4", Name: "Admin", Role: types.RoleAdmin, Email: "admin@medscript.com"},
}

// Store is the record store. Writes are serialized within the process;
// separate processes sharing a backend still race (last write wins).
type Store struct {
	kv     storage.KeyValueStore
	logger *logrus.Entry
	audit  *logger.Logger

	mu        sync.Mutex
	seed      []types.User
	seedStock []types.InventoryItem
	now       func() time.Time
	newID     func() string
	newToken  func() (string, error)
}

// Option configures a Store
type Option func(*Store)

// WithSeedUsers replaces the seed accounts; nil disables seeding
func WithSeedUsers(users []types.User) Option {
	return func(s *Store) { s.seed = users }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides identifier generation
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithTokenGenerator overrides verification token generation
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newToken = gen }
}

// NewStore creates a record store over kv
func NewStore(kv storage.KeyValueStore, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		logger:    log.WithComponent("records"),
		audit:     log,
		seed:      SeedUsers,
		seedStock: SeedInventory,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		newToken:  GenerateVerificationToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load decodes the collection under key. A missing key reports exists=false;
// a corrupted value is logged and read as an empty collection.
func load[T any](ctx context.Context, s *Store, key string) (items []T, exists bool, err error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewInternalError(types.ErrCodeStorageFailure, "failed to read "+key, err)
	}

	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Corrupted collection treated as empty")
		return nil, true, nil
	}
	return items, true, nil
}

func save[T any](ctx context.Context, s *Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode "+key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return types.NewInternalError(types.ErrCodeStorageFailure, "failed to write "+key, err)
	}
	return nil
}

// users loads the users collection, seeding it on first access. Caller holds s.mu.
func (s *Store) users(ctx context.Context) ([]types.User, error) {
	users, exists, err := load[types.User](ctx, s, UsersKey)
	if err != nil {
		return nil, err
	}
	if !exists && s.seed != nil {
		users = append([]types.User(nil), s.seed...)
		if err := save(ctx, s, UsersKey, users); err != nil {
			return nil, err
		}
		s.logger.WithField("count", len(users)).Info("Seeded user accounts")
	}
	return users, nil
}

func (s *Store) prescriptions(ctx context.Context) ([]types.Prescription, error) {
	list, _, err := load[types.Prescription](ctx, s, PrescriptionsKey)
	return list, err
}

// ListUsers returns all users in insertion order
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []types.User{}
	}
	return users, nil
}

// SearchUsers returns the users whose email or name contains term,
// ignoring case. An empty term matches everyone.
func (s *Store) SearchUsers(ctx context.Context, term string) ([]types.User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return users, nil
	}

	out := make([]types.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Email), term) || strings.Contains(strings.ToLower(u.Name), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindUserByEmailAndRole returns the first user whose email matches
// case-insensitively and whose role matches exactly, or nil.
func (s *Store) FindUserByEmailAndRole(ctx context.Context, email string, role types.UserRole) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) && u.Role == role {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// AddUser appends user to the collection. Duplicates are not checked.
func (s *Store) AddUser(ctx context.Context, user types.User) error {
	return s.appendUser(ctx, user, false)
}

func (s *Store) appendUser(ctx context.Context, user types.User, uniqueEmail bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	if uniqueEmail {
		for _, u := range users {
			if strings.EqualFold(u.Email, user.Email) {
				return types.NewConflictError(types.ErrCodeEmailRegistered, "This email is already registered in our medical database.")
			}
		}
	}
	users = append(users, user)
	if err := save(ctx, s, UsersKey, users); err != nil {
		return err
	}

	s.audit.Audit(user.ID, "add_user", "user", true, map[string]interface{}{"role": user.Role})
	return nil
}

// DeleteUser removes the user with the given id; unknown ids are a no-op
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users(ctx)
	if err != nil {
		return err
	}

	kept := make([]types.User, 0, len(users))
	for _, u := range users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(users) {
		return nil
	}
	if err := save(ctx, s, UsersKey, kept); err != nil {
		return err
	}

	s.audit.Audit(id, "delete_user", "user", true, nil)
	return nil
}

// ListPrescriptions returns all prescriptions, most recently created first
func (s *Store) ListPrescriptions(ctx context.Context) ([]types.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.prescriptions(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []types.Prescription{}
	}
	return list, nil
}

// SavePrescription inserts p at the head of the collection
func (s *Store) SavePrescription(ctx context.Context, p types.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.prescriptions(ctx)
	if err != nil {
		return err
	}
	list = append([]types.Prescription{p.Clone()}, list...)
	if err := save(ctx, s, PrescriptionsKey, list); err != nil {
		return err
	}

	s.audit.Audit(p.DoctorID, "save_prescription", "prescription", true, map[string]interface{}{
		"prescription_id": p.ID,
	})
	return nil
}

// UpdatePrescription applies update to the prescription with the given id.
// A status change must be a legal transition; an unknown id is a no-op and
// returns nil.
func (s *Store) UpdatePrescription(ctx context.Context, id string, update types.PrescriptionUpdate) (*types.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.prescriptions(ctx)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	updated := list[idx].Clone()
	if update.Status != nil {
		if err := types.TransitionStatus(updated.Status, *update.Status); err != nil {
			s.audit.Audit(id, "update_prescription", "prescription", false, map[string]interface{}{
				"from": updated.Status,
				"to":   *update.Status,
			})
			return nil, err
		}
		updated.Status = *update.Status
	}
	if update.Notes != nil {
		updated.Notes = *update.Notes
	}

	list[idx] = updated
	if err := save(ctx, s, PrescriptionsKey, list); err != nil {
		return nil, err
	}

	s.audit.Audit(id, "update_prescription", "prescription", true, map[string]interface{}{
		"status": updated.Status,
	})
	result := updated.Clone()
	return &result, nil
}

// GetPrescription returns the prescription with the given id, or nil
func (s *Store) GetPrescription(ctx context.Context, id string) (*types.Prescription, error) {
	return s.findPrescription(ctx, func(p types.Prescription) bool { return p.ID == id })
}

// FindByToken returns the prescription carrying the verification token, or nil
func (s *Store) FindByToken(ctx context.Context, token string) (*types.Prescription, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return s.findPrescription(ctx, func(p types.Prescription) bool { return p.QRCode == token })
}

func (s *Store) findPrescription(ctx context.Context, match func(types.Prescription) bool) (*types.Prescription, error) {
	list, err := s.ListPrescriptions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if match(p) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// GetPatientHistory returns the prescriptions issued to email, newest first
func (s *Store) GetPatientHistory(ctx context.Context, email string) ([]types.Prescription, error) {
	history, err := s.filterPrescriptions(ctx, func(p types.Prescription) bool {
		return strings.EqualFold(p.PatientEmail, email)
	})
	if err != nil {
		return nil, err
	}

	s.audit.PHIAccess(ctx, email, "read_history", "prescription", true, map[string]interface{}{
		"count": len(history),
	})
	return history, nil
}

// GetDoctorRecords returns the prescriptions issued by the doctor with email
func (s *Store) GetDoctorRecords(ctx context.Context, email string) ([]types.Prescription, error) {
	return s.filterPrescriptions(ctx, func(p types.Prescription) bool {
		return strings.EqualFold(p.DoctorEmail, email)
	})
}

func (s *Store) filterPrescriptions(ctx context.Context, keep func(types.Prescription) bool) ([]types.Prescription, error) {
	list, err := s.ListPrescriptions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Prescription, 0, len(list))
	for _, p := range list {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
