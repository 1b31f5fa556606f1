package main

import (
	"context"
	"encoding/json"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/divrecon/src/advisory"
	"github.com/username/divrecon/src/config"
	"github.com/username/divrecon/src/database"
	"github.com/username/divrecon/src/handlers"
	"github.com/username/divrecon/src/logger"
	"github.com/username/divrecon/src/processors"
	"github.com/username/divrecon/src/reports"
	"github.com/username/divrecon/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	primaryPath := flag.String("primary", "", "Path to the internal ledger CSV; with -custodian, runs once and exits")
	custodianPath := flag.String("custodian", "", "Path to the custodian CSV; with -primary, runs once and exits")
	outDir := flag.String("out", "out", "Directory that receives the reconciliation artifacts in one-shot mode")
	toleranceFlag := flag.String("tolerance", "", "Absolute amount tolerance override for one-shot mode")
	flag.Parse()

	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Dividend reconciliation service starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing caches...")
	annotationStore := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	resultCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	var advisor advisory.Advisor
	if config.Cfg.AdvisoryEnabled() {
		logger.L.Info("Advisory capability enabled", "model", config.Cfg.AdvisoryModel, "timeout", config.Cfg.AdvisoryTimeout)
		advisor = advisory.NewOpenAIAdvisor(config.Cfg)
	} else {
		logger.L.Warn("Advisory capability disabled; all annotations will use the deterministic fallback")
		advisor = advisory.Disabled{}
	}
	annotator := advisory.NewAnnotator(advisor, annotationStore)

	reconService := services.NewReconService(
		processors.NewMatcher(),
		processors.NewTaskPlanner(),
		annotator,
		resultCache,
	)

	if *primaryPath != "" || *custodianPath != "" {
		runOnce(reconService, *primaryPath, *custodianPath, *outDir, *toleranceFlag)
		return
	}

	reconHandler := handlers.NewReconHandler(reconService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/reconcile", reconHandler.HandleReconcile)
	apiRouter.HandleFunc("GET /api/breaks", reconHandler.HandleGetBreaks)
	apiRouter.HandleFunc("GET /api/tasks", reconHandler.HandleGetTasks)
	apiRouter.HandleFunc("GET /api/report", reconHandler.HandleGetReport)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Dividend reconciliation service is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}

// runOnce reconciles two feed files and writes the CSV/JSON/Markdown
// artifacts plus the agent plan to outDir.
func runOnce(reconService services.ReconService, primaryPath, custodianPath, outDir, toleranceFlag string) {
	if primaryPath == "" || custodianPath == "" {
		stdlog.Fatal("one-shot mode requires both -primary and -custodian")
	}

	tolerance := config.Cfg.Tolerance
	if toleranceFlag != "" {
		parsed, err := decimal.NewFromString(toleranceFlag)
		if err != nil || parsed.IsNegative() {
			stdlog.Fatalf("invalid -tolerance value %q", toleranceFlag)
		}
		tolerance = parsed
	}

	primaryFile, err := os.Open(primaryPath)
	if err != nil {
		stdlog.Fatalf("failed to open primary feed: %v", err)
	}
	defer primaryFile.Close()

	custodianFile, err := os.Open(custodianPath)
	if err != nil {
		stdlog.Fatalf("failed to open custodian feed: %v", err)
	}
	defer custodianFile.Close()

	result, err := reconService.Run(context.Background(), primaryFile, custodianFile, tolerance)
	if err != nil {
		stdlog.Fatalf("reconciliation failed: %v", err)
	}

	if err := reports.WriteCSV(filepath.Join(outDir, "recon_breaks.csv"), result.Breaks); err != nil {
		stdlog.Fatalf("failed to write break CSV: %v", err)
	}
	if err := reports.WriteJSON(filepath.Join(outDir, "recon_breaks.json"), result); err != nil {
		stdlog.Fatalf("failed to write break JSON: %v", err)
	}
	if err := reports.WriteTaskPlan(filepath.Join(outDir, "agent_plan.json"), result.Tasks); err != nil {
		stdlog.Fatalf("failed to write agent plan: %v", err)
	}
	if err := reports.WriteMarkdown(filepath.Join(outDir, "recon_report.md"), reports.MarkdownSummary(result)); err != nil {
		stdlog.Fatalf("failed to write report: %v", err)
	}

	logger.L.Info("Reconciliation artifacts written",
		"outDir", outDir,
		"breaks", len(result.Breaks),
		"tasks", len(result.Tasks))
}
