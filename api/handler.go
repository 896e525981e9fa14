package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"github.com/parseledger/document-pipeline-service/internal/db"
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/pipeline"
	"github.com/parseledger/document-pipeline-service/internal/push"
	"github.com/parseledger/document-pipeline-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests for the document pipeline
type Handler struct {
	config    *models.Config
	processor *pipeline.Processor
	engine    *push.Engine
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, processor *pipeline.Processor, engine *push.Engine) *Handler {
	return &Handler{
		config:    config,
		processor: processor,
		engine:    engine,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Documents
	router.HandleFunc("/api/documents", h.UploadDocument).Methods("POST")
	router.HandleFunc("/api/documents", h.ListDocuments).Methods("GET")
	router.HandleFunc("/api/documents/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/api/documents/{id}/reprocess", h.ReprocessDocument).Methods("POST")

	// Records
	router.HandleFunc("/api/records", h.ListRecords).Methods("GET")
	router.HandleFunc("/api/records/{id}", h.GetRecord).Methods("GET")
	router.HandleFunc("/api/records/{id}/review", h.ReviewRecord).Methods("POST")
	router.HandleFunc("/api/records/{id}/push", h.PushRecord).Methods("POST")
	router.HandleFunc("/api/records/{id}/jobs", h.ListRecordJobs).Methods("GET")

	// Jobs
	router.HandleFunc("/api/jobs/{id}", h.GetJob).Methods("GET")

	// Connections
	router.HandleFunc("/api/connections", h.CreateConnection).Methods("POST")
	router.HandleFunc("/api/connections", h.ListConnections).Methods("GET")
	router.HandleFunc("/api/connections/{id}", h.DeleteConnection).Methods("DELETE")
	router.HandleFunc("/api/connections/{id}/default", h.SetDefaultConnection).Methods("POST")
	router.HandleFunc("/api/connections/{id}/test", h.TestConnection).Methods("POST")

	// Field maps
	router.HandleFunc("/api/field-maps", h.UpsertFieldMap).Methods("PUT")
	router.HandleFunc("/api/field-maps", h.ListFieldMaps).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Timestamp  string            `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	Memory     MemoryStats       `json:"memory"`
	Database   ServiceStatus     `json:"database"`
	Storage    ServiceStatus     `json:"storage"`
	DocumentAI ServiceStatus     `json:"documentAI"`
	AI         map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	databaseStatus := h.checkDatabase()
	storageStatus := h.checkStorage()
	docAIStatus := h.checkDocumentAI()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database:   databaseStatus,
		Storage:    storageStatus,
		DocumentAI: docAIStatus,
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
		},
	}

	// Without the database no documents can be persisted
	if !databaseStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// checkDocumentAI reports whether the document AI endpoint is configured
func (h *Handler) checkDocumentAI() ServiceStatus {
	if h.config.DocAI.BaseURL == "" {
		return ServiceStatus{
			Available: false,
			Error:     "document AI endpoint not configured, using fallback text extraction",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   h.config.DocAI.BaseURL,
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
