package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Adarsh-shaw/MedScriptAI/internal/qr"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// verifyResponse reports the verification state and, when found, the prescription
type verifyResponse struct {
	State        qr.State          `json:"state"`
	Token        string            `json:"token,omitempty"`
	Prescription *prescriptionView `json:"prescription,omitempty"`
}

func (s *Server) newVerifier() *qr.Verifier {
	var rec qr.Recorder
	if s.metrics != nil {
		rec = s.metrics
	}
	return qr.NewVerifier(s.store, nil, s.log, rec)
}

func (s *Server) writeVerification(w http.ResponseWriter, v *qr.Verifier, token string) {
	resp := verifyResponse{State: v.State(), Token: token}
	status := http.StatusOK
	if p := v.Prescription(); p != nil {
		pv := s.view(*p)
		resp.Prescription = &pv
	} else {
		status = http.StatusNotFound
	}
	s.writeJSONResponse(w, status, resp)
}

// verifyTokenHandler looks up a manually entered token
func (s *Server) verifyTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	v := s.newVerifier()
	if _, err := v.Verify(r.Context(), req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeVerification(w, v, req.Token)
}

// verifyScanHandler decodes a QR code from an uploaded photo and verifies it
func (s *Server) verifyScanHandler(w http.ResponseWriter, r *http.Request) {
	img, err := readImage(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	token, ok := s.codec.DecodeBytes(img)
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordQRScan("undecodable")
		}
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "No QR code found in image", nil))
		return
	}

	v := s.newVerifier()
	if _, err := v.Verify(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeVerification(w, v, token)
}

// dispenseHandler verifies the token and dispenses the prescription it names
func (s *Server) dispenseHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	v := s.newVerifier()
	p, err := v.Verify(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p == nil {
		s.writeVerification(w, v, token)
		return
	}

	if _, err := v.Dispense(r.Context()); err != nil {
		if errors.Is(err, qr.ErrAlreadyDispensed) || errors.Is(err, qr.ErrNotPending) {
			err = types.NewConflictError(types.ErrCodeInvalidTransition, err.Error())
		}
		s.writeError(w, err)
		return
	}
	s.writeVerification(w, v, token)
}

func (s *Server) qrURLHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	s.writeJSONResponse(w, http.StatusOK, map[string]string{
		"token": token,
		"url":   s.codec.ImageURL(token, 0),
	})
}
