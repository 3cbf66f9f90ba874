package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hisig/luxaudit/audit"
)

// Upload limits. Plan images arrive as multipart forms, photos as raw
// bodies.
const (
	maxUploadBytes = 32 << 20
	maxPhotoBytes  = 16 << 20
)

// router builds the HTTP API. All project and plan names are taken
// from the path, escaped by the client.
func (a *App) router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", a.handleListProjects)
		r.Post("/projects", a.handleCreateProject)
		r.Get("/reports.pdf", a.handleAllProjectsPDF)

		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/", a.handleGetProject)
			r.Delete("/", a.handleDeleteProject)
			r.Get("/summary", a.handleSummary)
			r.Get("/report.csv", a.handleProjectCSV)
			r.Get("/report.pdf", a.handleProjectPDF)

			r.Post("/plans", a.handleUploadPlan)
			r.Route("/plans/{plan}", func(r chi.Router) {
				r.Delete("/", a.handleDeletePlan)
				r.Get("/overlay.png", a.handleOverlayPNG)
				r.Get("/overlay.svg", a.handleOverlaySVG)

				r.Post("/points", a.handleAddPoint)
				r.Delete("/points", a.handleClearPoints)
				r.Delete("/points/last", a.handleRemoveLastPoint)
				r.Delete("/points/{index}", a.handleRemovePoint)

				r.Put("/points/{index}/measurements", a.handleSetMeasurements)
				r.Put("/points/{index}/photo", a.handleSetPhoto)
			})
		})
	})

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"time":     time.Now().UTC(),
		"projects": len(a.Session.ProjectNames()),
		"mqtt":     a.Publisher.Enabled(),
	})
}

// projectInfo is the listing/detail shape for one project.
type projectInfo struct {
	Name    string            `json:"name"`
	General audit.GeneralInfo `json:"general"`
	Plans   []planInfo        `json:"plans"`
	Summary audit.Summary     `json:"summary"`
}

type planInfo struct {
	Name     string        `json:"name"`
	HasImage bool          `json:"has_image"`
	Points   int           `json:"points"`
	Records  int           `json:"records"`
	Summary  audit.Summary `json:"summary"`
}

func describeProject(pr *audit.Project) projectInfo {
	info := projectInfo{
		Name:    pr.Name,
		General: pr.General,
		Plans:   []planInfo{},
		Summary: audit.Summarize(pr),
	}
	for _, plan := range pr.Plans() {
		info.Plans = append(info.Plans, planInfo{
			Name:     plan.Name,
			HasImage: plan.HasImage(),
			Points:   plan.PointCount(),
			Records:  len(plan.Records),
			Summary:  audit.SummarizePlan(plan),
		})
	}
	return info
}

func (a *App) handleListProjects(w http.ResponseWriter, r *http.Request) {
	out := []projectInfo{}
	a.Session.ViewAll(func(projects []*audit.Project) error {
		for _, pr := range projects {
			out = append(out, describeProject(pr))
		}
		return nil
	})
	respondJSON(w, http.StatusOK, out)
}

func (a *App) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string            `json:"name"`
		General audit.GeneralInfo `json:"general"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pr, err := a.Session.CreateProject(r.Context(), req.Name, req.General)
	if err != nil && !errors.Is(err, audit.ErrSaveFailed) {
		respondError(w, err)
		return
	}
	if errors.Is(err, audit.ErrSaveFailed) {
		log.Printf("Warning: %v", err)
	}
	respondJSON(w, http.StatusCreated, describeProject(pr))
}

func (a *App) handleGetProject(w http.ResponseWriter, r *http.Request) {
	var info projectInfo
	err := a.Session.View(pathParam(r, "project"), func(pr *audit.Project) error {
		info = describeProject(pr)
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (a *App) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.DeleteProject(r.Context(), pathParam(r, "project")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	var sum audit.Summary
	err := a.Session.View(pathParam(r, "project"), func(pr *audit.Project) error {
		sum = audit.Summarize(pr)
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// handleUploadPlan accepts a multipart form with a "name" field and an
// "image" file (PNG, JPEG, or a PDF page when a rasterizer is wired).
func (a *App) handleUploadPlan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondErrorMessage(w, http.StatusBadRequest, "plan name is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "reading image upload")
		return
	}

	img, err := a.Ingester.Decode(data, header.Header.Get("Content-Type"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("decoding plan image: %v", err))
		return
	}

	err = a.Session.Update(r.Context(), pathParam(r, "project"), func(pr *audit.Project) error {
		plan := audit.NewPlan(name)
		plan.DedupRadius = a.Config.Capture.DedupRadius
		plan.SetImage(img)
		return pr.AddPlan(plan)
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"name":   name,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})
}

func (a *App) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	plan := pathParam(r, "plan")
	err := a.Session.Update(r.Context(), pathParam(r, "project"), func(pr *audit.Project) error {
		return pr.RemovePlan(plan)
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleAddPoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var index, total int
	err := a.withPlan(r, func(p *audit.Plan) error {
		n, err := p.AddPoint(req.X, req.Y)
		if err != nil {
			return err
		}
		index = n
		total = p.PointCount()
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"index": index, "total": total})
}

func (a *App) handleRemoveLastPoint(w http.ResponseWriter, r *http.Request) {
	err := a.withPlan(r, func(p *audit.Plan) error {
		if !p.RemoveLastPoint() {
			return fmt.Errorf("no points to remove: %w", audit.ErrUnknownPoint)
		}
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleRemovePoint(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	err := a.withPlan(r, func(p *audit.Plan) error {
		return p.RemovePointAt(index)
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleClearPoints(w http.ResponseWriter, r *http.Request) {
	err := a.withPlan(r, func(p *audit.Plan) error {
		p.ClearPoints()
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetMeasurements records four readings for a point. When the
// readings do not pass the configured capture rule no record is
// stored and the response says so instead of failing.
func (a *App) handleSetMeasurements(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Readings [4]float64 `json:"readings"`
		Category string     `json:"category"`
		Note     string     `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	project := pathParam(r, "project")
	plan := pathParam(r, "plan")

	var rec *audit.MeasurementRecord
	var recorded bool
	var summary audit.Summary
	err := a.Session.Update(r.Context(), project, func(pr *audit.Project) error {
		p, found := pr.Plan(plan)
		if !found {
			return fmt.Errorf("plan %q: %w", plan, audit.ErrUnknownPlan)
		}

		category := req.Category
		if category == "" {
			category = pr.General.DefaultCategory
		}
		entry := a.Table.Lookup(category)

		var err error
		rec, recorded, err = p.SetMeasurements(index, req.Readings, req.Note, entry, a.Config.Capture.Rule)
		if err != nil {
			return err
		}
		if recorded {
			summary = audit.SummarizePlan(p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, audit.ErrSaveFailed) {
		respondError(w, err)
		return
	}
	if errors.Is(err, audit.ErrSaveFailed) {
		log.Printf("Warning: %v", err)
	}

	if !recorded {
		respondJSON(w, http.StatusOK, map[string]bool{"recorded": false})
		return
	}

	a.Publisher.PublishMeasurement(project, plan, rec, summary)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recorded": true,
		"record":   rec,
	})
}

// handleSetPhoto attaches a raw image body as evidence for a point.
func (a *App) handleSetPhoto(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPhotoBytes))
	if err != nil || len(data) == 0 {
		respondErrorMessage(w, http.StatusBadRequest, "photo body is required")
		return
	}

	err = a.withPlan(r, func(p *audit.Plan) error {
		return p.SetPhoto(index, data)
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleOverlayPNG(w http.ResponseWriter, r *http.Request) {
	plan := pathParam(r, "plan")
	err := a.Session.View(pathParam(r, "project"), func(pr *audit.Project) error {
		p, found := pr.Plan(plan)
		if !found {
			return fmt.Errorf("plan %q: %w", plan, audit.ErrUnknownPlan)
		}

		img, err := a.Renderer.RenderPlan(p)
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding overlay PNG: %v", err)
		}
		return nil
	})
	if err != nil {
		respondError(w, err)
	}
}

func (a *App) handleOverlaySVG(w http.ResponseWriter, r *http.Request) {
	plan := pathParam(r, "plan")
	err := a.Session.View(pathParam(r, "project"), func(pr *audit.Project) error {
		p, found := pr.Plan(plan)
		if !found {
			return fmt.Errorf("plan %q: %w", plan, audit.ErrUnknownPlan)
		}
		if !p.HasImage() {
			return fmt.Errorf("plan %q: %w", plan, audit.ErrNoImage)
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := a.Renderer.RenderSVG(w, p.Image, p.RecordsInOrder()); err != nil {
			log.Printf("Error encoding overlay SVG: %v", err)
		}
		return nil
	})
	if err != nil {
		respondError(w, err)
	}
}

func (a *App) handleProjectCSV(w http.ResponseWriter, r *http.Request) {
	project := pathParam(r, "project")
	err := a.Session.View(project, func(pr *audit.Project) error {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", attachment(project, "csv"))
		return audit.WriteCSV(w, pr)
	})
	if err != nil {
		respondError(w, err)
	}
}

func (a *App) handleProjectPDF(w http.ResponseWriter, r *http.Request) {
	project := pathParam(r, "project")
	err := a.Session.View(project, func(pr *audit.Project) error {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment(project, "pdf"))
		return a.Report.WriteProject(w, pr)
	})
	if err != nil {
		respondError(w, err)
	}
}

func (a *App) handleAllProjectsPDF(w http.ResponseWriter, r *http.Request) {
	err := a.Session.ViewAll(func(projects []*audit.Project) error {
		if len(projects) == 0 {
			return fmt.Errorf("no projects: %w", audit.ErrUnknownProject)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment("auditorias", "pdf"))
		return a.Report.WriteAll(w, projects)
	})
	if err != nil {
		respondError(w, err)
	}
}

// withPlan runs a mutation against one plan and persists the result.
func (a *App) withPlan(r *http.Request, fn func(*audit.Plan) error) error {
	plan := pathParam(r, "plan")
	return a.Session.Update(r.Context(), pathParam(r, "project"), func(pr *audit.Project) error {
		p, found := pr.Plan(plan)
		if !found {
			return fmt.Errorf("plan %q: %w", plan, audit.ErrUnknownPlan)
		}
		return fn(p)
	})
}

// pathParam returns a decoded URL parameter. Project and plan names
// may contain spaces and accents.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		respondErrorMessage(w, http.StatusBadRequest, "point index must be a positive integer")
		return 0, false
	}
	return index, true
}

func attachment(name, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", name+"."+ext)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

func respondErrorMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, audit.ErrUnknownProject),
		errors.Is(err, audit.ErrUnknownPlan),
		errors.Is(err, audit.ErrUnknownPoint):
		status = http.StatusNotFound
	case errors.Is(err, audit.ErrDuplicateProject),
		errors.Is(err, audit.ErrDuplicatePlan),
		errors.Is(err, audit.ErrDuplicatePoint):
		status = http.StatusConflict
	case errors.Is(err, audit.ErrNoImage),
		errors.Is(err, audit.ErrInvalidMeasurement),
		errors.Is(err, audit.ErrNoRasterizer):
		status = http.StatusBadRequest
	case errors.Is(err, audit.ErrSaveFailed):
		status = http.StatusBadGateway
	default:
		log.Printf("Internal error: %v", err)
		respondErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondErrorMessage(w, status, err.Error())
}
