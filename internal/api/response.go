package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// errorResponse is the body of every non-2xx JSON response
type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError maps err to a status code by its error type
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "internal server error", Code: types.ErrCodeInternalError}

	var me *types.MedscriptError
	if errors.As(err, &me) {
		resp.Code = me.Code
		resp.Details = me.Details
		switch me.Type {
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeConflict:
			status = http.StatusConflict
		case types.ErrorTypeExternal:
			status = http.StatusBadGateway
		}
		if status != http.StatusInternalServerError {
			resp.Error = me.Message
		}
	}

	if status >= 500 {
		s.logger.WithError(err).Error("Request failed")
		if s.metrics != nil {
			s.metrics.RecordSystemError(string(types.ErrorTypeOf(err)), "api")
		}
	} else {
		s.logger.WithError(err).Debug("Request rejected")
	}

	resp.Status = status
	s.writeJSONResponse(w, status, resp)
}

func (s *Server) writeNotFound(w http.ResponseWriter, what string) {
	s.writeError(w, types.NewNotFoundError(types.ErrCodeNotFound, what+" not found"))
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags
func (s *Server) decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(dst); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{"cause": err.Error()})
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]interface{}, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			return types.NewValidationError(types.ErrCodeValidationFailed, "Request validation failed", fields)
		}
		return types.NewValidationError(types.ErrCodeValidationFailed, err.Error(), nil)
	}
	return nil
}

// readImage returns the uploaded image from a multipart "image" field or the raw body
func readImage(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid multipart upload", nil)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Missing image field", nil)
		}
		defer file.Close()
		return readAllLimited(file)
	}
	return readAllLimited(r.Body)
}

func readAllLimited(rd io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, maxUploadBytes+1))
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Failed to read upload", nil)
	}
	if len(data) > maxUploadBytes {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("Upload exceeds %d bytes", maxUploadBytes), nil)
	}
	if len(data) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Empty upload", nil)
	}
	return data, nil
}

// healthCheckHandler is used when no health manager is configured
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "medscript",
		"timestamp": time.Now().UTC(),
	})
}
