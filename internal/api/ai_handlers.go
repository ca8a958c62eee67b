package api

import (
	"net/http"

	"github.com/Adarsh-shaw/MedScriptAI/internal/ai"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

type interactionsRequest struct {
	Medications []types.Medication `json:"medications" validate:"dive"`
}

// interactionsResponse always carries the outcome so an empty list from a
// failed check is not mistaken for a clean one.
type interactionsResponse struct {
	Interactions []types.DrugInteraction `json:"interactions"`
	Outcome      ai.Outcome              `json:"outcome"`
}

type digitizeResponse struct {
	Medications []types.Medication `json:"medications"`
	Outcome     ai.Outcome         `json:"outcome"`
}

func (s *Server) checkInteractionsHandler(w http.ResponseWriter, r *http.Request) {
	var req interactionsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	interactions, outcome := s.ai.CheckInteractions(r.Context(), req.Medications)
	s.writeJSONResponse(w, http.StatusOK, interactionsResponse{Interactions: interactions, Outcome: outcome})
}

func (s *Server) digitizeHandler(w http.ResponseWriter, r *http.Request) {
	img, err := readImage(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	meds, outcome := s.ai.DigitizePrescriptionImage(r.Context(), img)
	status := http.StatusOK
	if outcome == ai.OutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSONResponse(w, status, digitizeResponse{Medications: meds, Outcome: outcome})
}
