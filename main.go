package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hisig/luxaudit/audit"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	storeBackend = flag.String("store", "", "Override store backend: file, sqlite, or remote")
	dataFile     = flag.String("data", "", "Override projects JSON path for the file backend")
	dbFile       = flag.String("db", "", "Override database path for the sqlite backend")
	validateOnly = flag.Bool("validate", false, "Validate the configuration and exit")
	httpMode     = flag.Bool("http", false, "Run the HTTP capture service")
	httpPort     = flag.Int("http-port", 0, "HTTP server port (overrides config)")
	mqttMode     = flag.Bool("mqtt", false, "Publish measurement events to MQTT in service mode")
	exportCSV    = flag.String("export-csv", "", "Export the named project's results as CSV and exit")
	exportPDF    = flag.String("export-pdf", "", "Export the named project's report as PDF and exit")
	exportAll    = flag.Bool("export-all-pdf", false, "Export every project into one PDF and exit")
	outputFile   = flag.String("output", "", "Output file for export modes")
)

func main() {
	flag.Parse()
	fmt.Printf("luxaudit version: %s\n", Version)

	cfg := loadAppConfig()

	if *validateOnly {
		fmt.Printf("Config OK: store=%s port=%d\n", cfg.Store.Backend, cfg.HTTP.Port)
		return
	}

	if *exportCSV != "" {
		runExport(cfg, func(app *App) error {
			return app.exportCSV(*exportCSV, outputOr(*exportCSV+".csv"))
		})
		return
	}

	if *exportPDF != "" {
		runExport(cfg, func(app *App) error {
			return app.exportPDF(*exportPDF, outputOr(*exportPDF+".pdf"))
		})
		return
	}

	if *exportAll {
		runExport(cfg, func(app *App) error {
			return app.exportAllPDF(outputOr("auditorias.pdf"))
		})
		return
	}

	if *httpMode {
		runService(cfg)
		return
	}

	fmt.Println("luxaudit: RETILAP lighting audit capture and reporting")
	fmt.Println("Use --http to run the capture service")
	fmt.Println("Use --export-csv=PROJECT to write a CSV report")
	fmt.Println("Use --export-pdf=PROJECT to write a PDF report")
	fmt.Println("Use --export-all-pdf to write one PDF covering every project")
	fmt.Println("Use --validate to check the configuration")
}

// loadAppConfig loads config.yaml, falling back to defaults when the
// default path does not exist, and applies CLI overrides.
func loadAppConfig() *audit.Config {
	cfg, err := audit.LoadConfig(*configFile)
	if err != nil {
		if *configFile == "config.yaml" {
			log.Printf("No config file, using defaults (%v)", err)
			cfg = audit.DefaultConfig()
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}
	if *dataFile != "" {
		cfg.Store.Path = *dataFile
	}
	if *dbFile != "" {
		cfg.Store.DBPath = *dbFile
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}
	return cfg
}

func outputOr(fallback string) string {
	if *outputFile != "" {
		return *outputFile
	}
	return fallback
}

// runExport runs a one-shot export against the configured store.
func runExport(cfg *audit.Config, fn func(*App) error) {
	app, err := newApp(cfg, false)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := app.loadProjects(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	if err := fn(app); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

// runService starts the HTTP capture API and blocks until interrupted.
func runService(cfg *audit.Config) {
	app, err := newApp(cfg, *mqttMode)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := app.loadProjects(ctx); err != nil {
		cancel()
		log.Fatalf("%v", err)
	}
	cancel()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	fmt.Printf("luxaudit service running on %s\n", addr)
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/projects")
	fmt.Println("  GET  /api/projects/{project}/report.pdf")
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	fmt.Println("Service stopped")
}
