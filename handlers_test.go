package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hisig/luxaudit/audit"
)

// newTestApp builds an App over a file store in a temp directory and
// serves its router from an httptest server.
func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()

	cfg := audit.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "projects.json")

	app, err := newApp(cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := app.loadProjects(context.Background()); err != nil {
		t.Fatalf("loadProjects: %v", err)
	}

	srv := httptest.NewServer(app.router())
	t.Cleanup(srv.Close)
	t.Cleanup(app.Close)
	return app, srv
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// createProject posts a project and asserts 201.
func createProject(t *testing.T, base, name string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, base+"/api/projects", map[string]interface{}{
		"name":    name,
		"general": map[string]string{"numero_orden": "OT-1", "tipo_area": "Oficinas: escritura y lectura"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: status %d", resp.StatusCode)
	}
}

// uploadPlan posts a generated PNG as a plan image.
func uploadPlan(t *testing.T, base, project, plan string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encoding plan PNG: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", plan); err != nil {
		t.Fatalf("writing name field: %v", err)
	}
	fw, err := mw.CreateFormFile("image", "plano.png")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("writing image part: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, base+"/api/projects/"+project+"/plans", &body)
	if err != nil {
		t.Fatalf("building upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload plan: status %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestApp(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var status struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &status)
	if status.Status != "ok" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestProjectLifecycle(t *testing.T) {
	_, srv := newTestApp(t)

	createProject(t, srv.URL, "Bodega")

	// Duplicate name conflicts.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/projects", map[string]interface{}{"name": "Bodega"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create: status %d, want 409", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/projects")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list []json.RawMessage
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("project count = %d, want 1", len(list))
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/projects/Bodega", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/projects/Bodega")
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted: status %d, want 404", resp.StatusCode)
	}
}

func TestCaptureFlow(t *testing.T) {
	_, srv := newTestApp(t)
	createProject(t, srv.URL, "Bodega")
	uploadPlan(t, srv.URL, "Bodega", "piso 1")

	pointsURL := srv.URL + "/api/projects/Bodega/plans/piso%201/points"

	// First click lands.
	resp := doJSON(t, http.MethodPost, pointsURL, map[string]float64{"x": 100, "y": 80})
	var added struct {
		Index int `json:"index"`
		Total int `json:"total"`
	}
	decodeBody(t, resp, &added)
	if added.Index != 1 || added.Total != 1 {
		t.Fatalf("added = %+v", added)
	}

	// A nearby click is a duplicate.
	resp = doJSON(t, http.MethodPost, pointsURL, map[string]float64{"x": 105, "y": 85})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("near-duplicate click: status %d, want 409", resp.StatusCode)
	}

	// Incomplete readings record nothing.
	measureURL := pointsURL + "/1/measurements"
	resp = doJSON(t, http.MethodPut, measureURL, map[string]interface{}{
		"readings": []float64{500, 0, 500, 500},
	})
	var outcome struct {
		Recorded bool                     `json:"recorded"`
		Record   *audit.MeasurementRecord `json:"record"`
	}
	decodeBody(t, resp, &outcome)
	if outcome.Recorded {
		t.Fatal("incomplete readings must not record")
	}

	// Complete readings produce a verdict.
	resp = doJSON(t, http.MethodPut, measureURL, map[string]interface{}{
		"readings": []float64{600, 500, 500, 500},
		"note":     "junto a la ventana",
	})
	decodeBody(t, resp, &outcome)
	if !outcome.Recorded || outcome.Record == nil {
		t.Fatal("expected a recorded measurement")
	}
	if outcome.Record.Average != 525.0 {
		t.Errorf("Average = %v, want 525.0", outcome.Record.Average)
	}
	if outcome.Record.Verdict != audit.VerdictConforme {
		t.Errorf("Verdict = %q", outcome.Record.Verdict)
	}

	// Overlay renders.
	resp, err := http.Get(srv.URL + "/api/projects/Bodega/plans/piso%201/overlay.png")
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("overlay Content-Type = %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("overlay is not a valid PNG: %v", err)
	}

	// Summary reflects the single conforming point.
	resp, err = http.Get(srv.URL + "/api/projects/Bodega/summary")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var sum audit.Summary
	decodeBody(t, resp, &sum)
	if sum.TotalPoints != 1 || sum.Conformes != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPointRemovalEndpoints(t *testing.T) {
	_, srv := newTestApp(t)
	createProject(t, srv.URL, "Bodega")
	uploadPlan(t, srv.URL, "Bodega", "p1")

	pointsURL := srv.URL + "/api/projects/Bodega/plans/p1/points"
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, pointsURL, map[string]float64{"x": float64(50 + i*100), "y": 50})
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodDelete, pointsURL+"/last", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete last: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete last: status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, pointsURL+"/1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete index: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete index: status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, pointsURL+"/9", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing index: status %d, want 404", resp.StatusCode)
	}
}

func TestReportEndpoints(t *testing.T) {
	_, srv := newTestApp(t)
	createProject(t, srv.URL, "Bodega")
	uploadPlan(t, srv.URL, "Bodega", "p1")

	pointsURL := srv.URL + "/api/projects/Bodega/plans/p1/points"
	resp := doJSON(t, http.MethodPost, pointsURL, map[string]float64{"x": 60, "y": 60})
	resp.Body.Close()
	resp = doJSON(t, http.MethodPut, pointsURL+"/1/measurements", map[string]interface{}{
		"readings": []float64{700, 700, 700, 700},
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/projects/Bodega/report.csv")
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv: status %d", resp.StatusCode)
	}
	var csvBuf bytes.Buffer
	csvBuf.ReadFrom(resp.Body)
	if !bytes.Contains(csvBuf.Bytes(), []byte("Conforme")) {
		t.Errorf("CSV missing verdict column: %.120q", csvBuf.String())
	}

	for _, path := range []string{"/api/projects/Bodega/report.pdf", "/api/reports.pdf"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var pdfBuf bytes.Buffer
		pdfBuf.ReadFrom(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		if !bytes.HasPrefix(pdfBuf.Bytes(), []byte("%PDF")) {
			t.Errorf("%s did not return a PDF", path)
		}
	}
}

func TestUploadPlanRejectsGarbage(t *testing.T) {
	_, srv := newTestApp(t)
	createProject(t, srv.URL, "Bodega")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("name", "p1")
	fw, _ := mw.CreateFormFile("image", "nota.txt")
	fmt.Fprint(fw, "this is not an image")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/projects/Bodega/plans", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("garbage upload: status %d, want 400", resp.StatusCode)
	}
}
