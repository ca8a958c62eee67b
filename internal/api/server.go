// Package api exposes the record store, AI gateway and QR verification over
// a JSON HTTP API.
package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Adarsh-shaw/MedScriptAI/internal/ai"
	"github.com/Adarsh-shaw/MedScriptAI/internal/qr"
	"github.com/Adarsh-shaw/MedScriptAI/internal/records"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/monitoring"
)

// maxUploadBytes bounds uploaded prescription and QR images
const maxUploadBytes = 10 << 20

// Dependencies wires the server to the core components.
// Metrics, Health and Monitoring are optional.
type Dependencies struct {
	Store      *records.Store
	AI         *ai.Gateway
	Codec      *qr.Codec
	Logger     *logger.Logger
	Metrics    *monitoring.MetricsCollector
	Health     *monitoring.HealthManager
	Monitoring *monitoring.MonitoringMiddleware

	// HealthPath and MetricsPath default to /health and /metrics
	HealthPath  string
	MetricsPath string
}

// Server handles HTTP requests
type Server struct {
	store    *records.Store
	ai       *ai.Gateway
	codec    *qr.Codec
	metrics  *monitoring.MetricsCollector
	health   *monitoring.HealthManager
	monitor  *monitoring.MonitoringMiddleware
	log      *logger.Logger
	logger   *logrus.Entry
	validate *validator.Validate
	router   *mux.Router

	healthPath  string
	metricsPath string
}

// NewServer creates the server and configures its routes
func NewServer(deps Dependencies) *Server {
	s := &Server{
		store:    deps.Store,
		ai:       deps.AI,
		codec:    deps.Codec,
		metrics:  deps.Metrics,
		health:   deps.Health,
		monitor:  deps.Monitoring,
		log:      deps.Logger,
		logger:   deps.Logger.WithComponent("api"),
		validate: validator.New(),
		router:   mux.NewRouter(),

		healthPath:  deps.HealthPath,
		metricsPath: deps.MetricsPath,
	}
	if s.healthPath == "" {
		s.healthPath = "/health"
	}
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(corsMiddleware, securityHeadersMiddleware)
	if s.monitor != nil {
		r.Use(s.monitor.HTTPMiddleware)
	}

	if s.health != nil {
		r.HandleFunc(s.healthPath, s.health.HTTPHandler()).Methods(http.MethodGet)
	} else {
		r.HandleFunc(s.healthPath, s.healthCheckHandler).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Session routes
	api.HandleFunc("/auth/login", s.loginHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", s.sessionHandler).Methods(http.MethodGet)
	api.HandleFunc("/auth/session", s.logoutHandler).Methods(http.MethodDelete)

	// User routes
	api.HandleFunc("/patients/register", s.registerPatientHandler).Methods(http.MethodPost)
	api.HandleFunc("/users", s.listUsersHandler).Methods(http.MethodGet)
	api.HandleFunc("/users", s.createUserHandler).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.deleteUserHandler).Methods(http.MethodDelete)
	api.HandleFunc("/admin/overview", s.adminOverviewHandler).Methods(http.MethodGet)

	// Prescription routes
	api.HandleFunc("/prescriptions", s.listPrescriptionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/prescriptions", s.issuePrescriptionHandler).Methods(http.MethodPost)
	api.HandleFunc("/prescriptions/{id}", s.getPrescriptionHandler).Methods(http.MethodGet)
	api.HandleFunc("/prescriptions/{id}", s.updatePrescriptionHandler).Methods(http.MethodPatch)
	api.HandleFunc("/prescriptions/{id}/qr", s.prescriptionQRHandler).Methods(http.MethodGet)
	api.HandleFunc("/prescriptions/{id}/pdf", s.prescriptionPDFHandler).Methods(http.MethodGet)

	// Patient and doctor views
	api.HandleFunc("/patients/{email}/prescriptions", s.patientHistoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/patients/{email}/reminders", s.patientRemindersHandler).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{email}/prescriptions", s.doctorRecordsHandler).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}/stats", s.doctorStatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}/recent", s.doctorRecentHandler).Methods(http.MethodGet)

	// Pharmacy stock
	api.HandleFunc("/inventory", s.listInventoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/inventory/alerts", s.stockAlertsHandler).Methods(http.MethodGet)
	api.HandleFunc("/inventory/{id}", s.adjustStockHandler).Methods(http.MethodPatch)

	// Pharmacist verification
	api.HandleFunc("/verify", s.verifyTokenHandler).Methods(http.MethodPost)
	api.HandleFunc("/verify/scan", s.verifyScanHandler).Methods(http.MethodPost)
	api.HandleFunc("/verify/{token}/dispense", s.dispenseHandler).Methods(http.MethodPost)
	api.HandleFunc("/qr/{token}", s.qrURLHandler).Methods(http.MethodGet)

	// AI assistance
	api.HandleFunc("/ai/interactions", s.checkInteractionsHandler).Methods(http.MethodPost)
	api.HandleFunc("/ai/digitize", s.digitizeHandler).Methods(http.MethodPost)

	s.logger.Info("API routes configured")
}

// corsMiddleware handles CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
