package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// loginHandler signs in by email and role. The password is not checked.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := s.decodeAndValidate(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.store.Login(r.Context(), creds.Email, creds.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if user == nil {
		s.writeJSONResponse(w, http.StatusUnauthorized, errorResponse{
			Error:  "No account matches this email and role",
			Code:   types.ErrCodeNotFound,
			Status: http.StatusUnauthorized,
			Details: map[string]interface{}{
				"demoEmail": types.DemoEmail(creds.Role),
			},
		})
		return
	}

	s.writeJSONResponse(w, http.StatusOK, user)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.CurrentSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if user == nil {
		s.writeNotFound(w, "Session")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, user)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Logout(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerPatientHandler(w http.ResponseWriter, r *http.Request) {
	var req types.PatientRegistrationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.store.RegisterPatient(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, user)
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if role := r.URL.Query().Get("role"); role != "" {
		parsed, err := types.ParseUserRole(role)
		if err != nil {
			s.writeError(w, err)
			return
		}
		filtered := make([]types.User, 0, len(users))
		for _, u := range users {
			if u.Role == parsed {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	s.writeJSONResponse(w, http.StatusOK, users)
}

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, user)
}

func (s *Server) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminOverviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := s.store.AdminOverview(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, overview)
}
