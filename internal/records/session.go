package records

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/storage"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// Login looks up the account for email and role and records it as the
// signed-in user. No password is checked: the selected role is trusted.
// A miss returns nil without touching the session.
func (s *Store) Login(ctx context.Context, email string, role types.UserRole) (*types.User, error) {
	user, err := s.FindUserByEmailAndRole(ctx, email, role)
	if err != nil || user == nil {
		s.audit.Audit(email, "login", "session", false, map[string]interface{}{"role": role})
		return nil, err
	}

	if err := s.SaveSession(ctx, *user); err != nil {
		return nil, err
	}
	s.audit.Audit(user.ID, "login", "session", true, map[string]interface{}{"role": role})
	return user, nil
}

// SaveSession persists the signed-in user under SessionKey
func (s *Store) SaveSession(ctx context.Context, user types.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode session", err)
	}
	if err := s.kv.Set(ctx, SessionKey, raw); err != nil {
		return types.NewInternalError(types.ErrCodeStorageFailure, "failed to write session", err)
	}
	return nil
}

// CurrentSession returns the signed-in user, or nil when nobody is signed in
func (s *Store) CurrentSession(ctx context.Context) (*types.User, error) {
	raw, err := s.kv.Get(ctx, SessionKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeStorageFailure, "failed to read session", err)
	}

	var user types.User
	if err := json.Unmarshal(raw, &user); err != nil {
		s.logger.WithError(err).Warn("Corrupted session discarded")
		return nil, nil
	}
	return &user, nil
}

// Logout clears the signed-in user
func (s *Store) Logout(ctx context.Context) error {
	if err := s.kv.Remove(ctx, SessionKey); err != nil {
		return types.NewInternalError(types.ErrCodeStorageFailure, "failed to clear session", err)
	}
	return nil
}
