package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Adarsh-shaw/MedScriptAI/internal/records"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// issueRequest names the issuing doctor alongside the prescription fields
type issueRequest struct {
	DoctorEmail string `json:"doctorEmail" validate:"required,email"`
	types.IssueRequest
}

// prescriptionView adds the rendered QR link to a prescription
type prescriptionView struct {
	types.Prescription
	QRImageURL string `json:"qrImageUrl"`
}

func (s *Server) view(p types.Prescription) prescriptionView {
	return prescriptionView{Prescription: p, QRImageURL: s.codec.ImageURL(p.QRCode, 0)}
}

func (s *Server) listPrescriptionsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPrescriptions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]types.Prescription, 0, len(list))
		for _, p := range list {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}

	s.writeJSONResponse(w, http.StatusOK, list)
}

func (s *Server) issuePrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	doctor, err := s.store.FindUserByEmailAndRole(r.Context(), req.DoctorEmail, types.RoleDoctor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if doctor == nil {
		s.writeNotFound(w, "Doctor")
		return
	}

	p, err := s.store.IssuePrescription(r.Context(), *doctor, req.IssueRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, s.view(*p))
}

func (s *Server) getPrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPrescription(w, r)
	if !ok {
		return
	}
	s.writeJSONResponse(w, http.StatusOK, s.view(*p))
}

func (s *Server) updatePrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var update types.PrescriptionUpdate
	if err := s.decodeAndValidate(r, &update); err != nil {
		s.writeError(w, err)
		return
	}

	p, err := s.store.UpdatePrescription(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p == nil {
		s.writeNotFound(w, "Prescription")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, s.view(*p))
}

func (s *Server) prescriptionQRHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPrescription(w, r)
	if !ok {
		return
	}

	png, err := s.codec.RenderPNG(p.QRCode)
	if err != nil {
		s.writeError(w, types.NewInternalError(types.ErrCodeInternalError, "failed to render QR code", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) prescriptionPDFHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPrescription(w, r)
	if !ok {
		return
	}

	doc, err := records.RenderPDF(*p, s.codec)
	if err != nil {
		s.writeError(w, types.NewInternalError(types.ErrCodeInternalError, "failed to render prescription", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) lookupPrescription(w http.ResponseWriter, r *http.Request) (*types.Prescription, bool) {
	p, err := s.store.GetPrescription(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if p == nil {
		s.writeNotFound(w, "Prescription")
		return nil, false
	}
	return p, true
}

func (s *Server) patientHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.GetPatientHistory(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, history)
}

func (s *Server) patientRemindersHandler(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.store.PatientReminders(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, schedule)
}

func (s *Server) doctorRecordsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.GetDoctorRecords(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, list)
}

func (s *Server) doctorStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DoctorStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, stats)
}

func (s *Server) doctorRecentHandler(w http.ResponseWriter, r *http.Request) {
	recent, err := s.store.RecentInteractions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, recent)
}
