package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// stockAlerts is the low-stock badge payload
type stockAlerts struct {
	Count int                   `json:"count"`
	Items []types.InventoryItem `json:"items"`
}

func (s *Server) listInventoryHandler(w http.ResponseWriter, r *http.Request) {
	lowOnly := false
	if raw := r.URL.Query().Get("low"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "low must be a boolean", nil))
			return
		}
		lowOnly = parsed
	}

	var (
		items []types.InventoryItem
		err   error
	)
	if lowOnly {
		items, err = s.store.LowStock(r.Context())
	} else {
		items, err = s.store.ListInventory(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, items)
}

func (s *Server) stockAlertsHandler(w http.ResponseWriter, r *http.Request) {
	low, err := s.store.LowStock(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, stockAlerts{Count: len(low), Items: low})
}

func (s *Server) adjustStockHandler(w http.ResponseWriter, r *http.Request) {
	var req types.StockAdjustment
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	item, err := s.store.AdjustStock(r.Context(), mux.Vars(r)["id"], req.Delta)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if item == nil {
		s.writeNotFound(w, "Inventory item")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, item)
}
