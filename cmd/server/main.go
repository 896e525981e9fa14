package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parseledger/document-pipeline-service/api"
	"github.com/parseledger/document-pipeline-service/internal/ai"
	"github.com/parseledger/document-pipeline-service/internal/auth"
	"github.com/parseledger/document-pipeline-service/internal/db"
	"github.com/parseledger/document-pipeline-service/internal/docai"
	"github.com/parseledger/document-pipeline-service/internal/models"
	"github.com/parseledger/document-pipeline-service/internal/pipeline"
	"github.com/parseledger/document-pipeline-service/internal/push"
	"github.com/parseledger/document-pipeline-service/internal/storage"
)

func main() {
	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connection pool
	if err := db.Init(config.Database); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running without persistence")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(config.Storage.Bucket); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Original documents will not be stored")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Build the extraction pipeline
	var llm *ai.Extractor
	provider, err := ai.NewProvider(config.AI)
	if err != nil {
		log.Printf("Warning: AI provider not available: %v", err)
		log.Println("LLM fallback and recovery disabled")
	} else {
		llm = ai.NewExtractor(provider)
		log.Printf("AI provider initialized: %s", provider.Name())
	}
	processor := pipeline.NewProcessor(docai.NewClient(config.DocAI), llm, docai.FallbackText)

	// Build the push engine
	var files push.FileStore
	if storage.Client != nil {
		files = storage.ExportStore{}
	}
	engine := push.NewEngine(db.PushStore{}, files)

	// Create API handler
	handler := api.NewHandler(config, processor, engine)
	router := handler.SetupRoutes()

	// Add login endpoint
	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	// Wrap router with JWT middleware (skips /health and /api/login)
	protectedRouter := auth.JWTMiddleware(router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Document Pipeline Service v%s on %s", api.Version, addr)
	log.Printf("Document AI: %s", config.DocAI.BaseURL)
	log.Printf("Default AI Provider: %s", config.AI.DefaultProvider)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/login                     - Authenticate", addr)
	log.Printf("  POST http://%s/api/documents                 - Upload and extract (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/documents                 - List documents (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/documents/{id}            - Get document (requires JWT)", addr)
	log.Printf("  POST http://%s/api/documents/{id}/reprocess  - Re-run extraction (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/records                   - List records (requires JWT)", addr)
	log.Printf("  POST http://%s/api/records/{id}/review       - Approve or reject (requires JWT)", addr)
	log.Printf("  POST http://%s/api/records/{id}/push         - Push to destination (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/records/{id}/jobs         - Push history (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/jobs/{id}                 - Push job detail (requires JWT)", addr)
	log.Printf("  POST http://%s/api/connections               - Create connection (requires JWT)", addr)
	log.Printf("  PUT  http://%s/api/field-maps                - Save field map (requires JWT)", addr)
	log.Printf("  GET  http://%s/health                        - Health check", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if baseURL := os.Getenv("DOCAI_BASE_URL"); baseURL != "" {
		config.DocAI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("DOCAI_API_KEY"); apiKey != "" {
		config.DocAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Database.Port)
	}
	if user := os.Getenv("DB_USER"); user != "" {
		config.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		config.Database.Name = name
	}

	return &config, nil
}
