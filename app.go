package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hisig/luxaudit/audit"
)

// App wires the configured store, reference table, session state and
// exporters together. Both the one-shot CLI modes and the HTTP service
// run on top of the same App.
type App struct {
	Config    *audit.Config
	Table     *audit.ReferenceTable
	Store     audit.ProjectStore
	Session   *audit.Session
	Publisher *audit.Publisher
	Ingester  *audit.Ingester
	Renderer  *audit.OverlayRenderer
	Report    *audit.PDFReport
}

// newApp builds an App from config. MQTT stays disabled unless
// enableMQTT is set; one-shot export modes never need a broker.
func newApp(cfg *audit.Config, enableMQTT bool) (*App, error) {
	table, err := cfg.ReferenceTable()
	if err != nil {
		return nil, fmt.Errorf("building reference table: %w", err)
	}

	store, err := cfg.OpenStore(table)
	if err != nil {
		return nil, fmt.Errorf("opening project store: %w", err)
	}

	renderer := audit.NewOverlayRenderer()
	renderer.Style.Radius = cfg.Capture.MarkerRadius

	ingester := audit.NewIngester()
	ingester.MaxWidth = cfg.Capture.MaxImageWidth

	publisher := audit.NewPublisher(nil, cfg.MQTT.PublishPrefix)
	if enableMQTT {
		publisher, err = audit.ConnectPublisher(cfg.MQTT)
		if err != nil {
			return nil, err
		}
	}

	return &App{
		Config:    cfg,
		Table:     table,
		Store:     store,
		Session:   audit.NewSession(store),
		Publisher: publisher,
		Ingester:  ingester,
		Renderer:  renderer,
		Report:    audit.NewPDFReport(cfg.Report, renderer),
	}, nil
}

// loadProjects populates the session from the store.
func (a *App) loadProjects(ctx context.Context) error {
	if err := a.Session.Load(ctx); err != nil {
		return fmt.Errorf("loading projects: %w", err)
	}
	names := a.Session.ProjectNames()
	log.Printf("Loaded %d project(s): %v", len(names), names)
	return nil
}

// Close releases external connections.
func (a *App) Close() {
	a.Publisher.Disconnect()
	if closer, ok := a.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}
}

// exportCSV writes one project's flattened results to a CSV file.
func (a *App) exportCSV(project, output string) error {
	return a.Session.View(project, func(pr *audit.Project) error {
		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := audit.WriteCSV(f, pr); err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}
		log.Printf("Wrote CSV report for %q to %s", project, output)
		return nil
	})
}

// exportPDF writes one project's full report to a PDF file.
func (a *App) exportPDF(project, output string) error {
	return a.Session.View(project, func(pr *audit.Project) error {
		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := a.Report.WriteProject(f, pr); err != nil {
			return fmt.Errorf("writing PDF: %w", err)
		}
		log.Printf("Wrote PDF report for %q to %s", project, output)
		return nil
	})
}

// exportAllPDF writes every project into a single batch PDF.
func (a *App) exportAllPDF(output string) error {
	return a.Session.ViewAll(func(projects []*audit.Project) error {
		if len(projects) == 0 {
			return fmt.Errorf("no projects to export")
		}

		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := a.Report.WriteAll(f, projects); err != nil {
			return fmt.Errorf("writing batch PDF: %w", err)
		}
		log.Printf("Wrote batch PDF covering %d project(s) to %s", len(projects), output)
		return nil
	})
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, nil
}
