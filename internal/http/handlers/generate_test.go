package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"diagramd/internal/domain"
	"diagramd/internal/http/handlers"
	"diagramd/internal/http/httpapi"
	"diagramd/internal/jobs"
	"diagramd/internal/pipeline"
	"diagramd/internal/storage"
)

type runnerFunc func(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error)

func (f runnerFunc) Run(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error) {
	return f(ctx, in)
}

// fakeFactory drives the job exactly like the real pipeline: one image
// written per iteration, progress reported through the sink.
func fakeFactory(runs *storage.RunStore, gate <-chan struct{}) jobs.RunnerFactory {
	return jobs.FactoryFunc(func(runDir string, iterations int, sink pipeline.Sink) (jobs.Runner, error) {
		return runnerFunc(func(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error) {
			if gate != nil {
				<-gate
			}
			sink.Report(ctx, pipeline.Update{Phase: domain.PhasePlanning, Agent: domain.AgentRetriever, Message: "Retrieving relevant examples..."})
			results := make([]domain.IterationResult, 0, iterations)
			for k := 1; k <= iterations; k++ {
				sink.Report(ctx, pipeline.Update{
					Phase:     domain.PhaseRefinement,
					Agent:     domain.AgentVisualizer,
					Iteration: k,
					Message:   fmt.Sprintf("Generating image (iteration %d/%d)...", k, iterations),
				})
				path, err := runs.Write(runDir, fmt.Sprintf("diagram_iter_%d.png", k), []byte("png-bytes"))
				if err != nil {
					return nil, err
				}
				res := domain.IterationResult{Iteration: k, ImagePath: path, Verdict: "ok"}
				results = append(results, res)
				sink.IterationDone(ctx, res)
			}
			return &domain.GenerationOutput{
				ImagePath:  results[len(results)-1].ImagePath,
				Iterations: results,
				RunDir:     runDir,
			}, nil
		}), nil
	})
}

func newTestServer(t *testing.T, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	runs, err := storage.NewRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunStore returned error: %v", err)
	}
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:         jobs.NewMemoryStore(),
		Runs:          runs,
		Factory:       fakeFactory(runs, gate),
		Logger:        zerolog.Nop(),
		MaxConcurrent: 2,
	})
	app := handlers.NewApp(svc, zerolog.Nop())
	server := httptest.NewServer(httpapi.NewRouter(app, zerolog.Nop()))
	t.Cleanup(server.Close)
	return server
}

func postGenerate(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/generate", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /api/generate failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func pollStatus(t *testing.T, server *httptest.Server, jobID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(server.URL + "/api/status/" + jobID)
		if err != nil {
			t.Fatalf("GET /api/status failed: %v", err)
		}
		var body map[string]any
		decodeBody(t, resp, &body)
		status, _ := body["status"].(string)
		if status == want {
			return body
		}
		if status == string(domain.JobStatusFailed) && want != string(domain.JobStatusFailed) {
			t.Fatalf("job failed while waiting for %s: %v", want, body)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached status %s", want)
	return nil
}

func TestGenerateEndToEnd(t *testing.T) {
	server := newTestServer(t, nil)

	resp := postGenerate(t, server, `{"text":"A retrieval-augmented pipeline description","caption":"diagram of RAG architecture","iterations":3}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &accepted)
	if accepted.JobID == "" {
		t.Fatal("empty job_id in response")
	}
	if accepted.Status != string(domain.JobStatusQueued) {
		t.Fatalf("initial status = %q, want queued", accepted.Status)
	}

	final := pollStatus(t, server, accepted.JobID, string(domain.JobStatusCompleted))
	if phase, _ := final["phase"].(string); phase != string(domain.PhaseCompleted) {
		t.Errorf("phase = %q, want completed", phase)
	}
	if total, _ := final["total_iterations"].(float64); int(total) != 3 {
		t.Errorf("total_iterations = %v, want 3", final["total_iterations"])
	}

	resultResp, err := http.Get(server.URL + "/api/result/" + accepted.JobID)
	if err != nil {
		t.Fatalf("GET /api/result failed: %v", err)
	}
	if resultResp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d, want 200", resultResp.StatusCode)
	}
	var result struct {
		JobID           string   `json:"job_id"`
		Status          string   `json:"status"`
		FinalImage      string   `json:"final_image"`
		IterationImages []string `json:"iteration_images"`
	}
	decodeBody(t, resultResp, &result)
	if len(result.IterationImages) != 3 {
		t.Fatalf("iteration_images = %v, want 3 entries", result.IterationImages)
	}
	wantFinal := fmt.Sprintf("/api/result/%s/image/diagram_iter_3.png", accepted.JobID)
	if result.FinalImage != wantFinal {
		t.Fatalf("final_image = %q, want %q", result.FinalImage, wantFinal)
	}
	for i, ref := range result.IterationImages {
		want := fmt.Sprintf("/api/result/%s/image/diagram_iter_%d.png", accepted.JobID, i+1)
		if ref != want {
			t.Errorf("iteration_images[%d] = %q, want %q", i, ref, want)
		}
	}

	imgResp, err := http.Get(server.URL + result.FinalImage)
	if err != nil {
		t.Fatalf("GET image failed: %v", err)
	}
	defer imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusOK {
		t.Fatalf("image status = %d, want 200", imgResp.StatusCode)
	}
}

func TestGenerateValidation(t *testing.T) {
	server := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing text", `{"caption":"a diagram"}`},
		{"missing caption", `{"text":"some context"}`},
		{"blank text", `{"text":"   ","caption":"a diagram"}`},
		{"iterations too high", `{"text":"ctx","caption":"cap","iterations":6}`},
		{"iterations negative", `{"text":"ctx","caption":"cap","iterations":-1}`},
		{"malformed json", `{"text":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postGenerate(t, server, tc.body)
			var body map[string]string
			decodeBody(t, resp, &body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%v)", resp.StatusCode, body)
			}
			if body["error"] != "bad_request" {
				t.Errorf("error code = %q, want bad_request", body["error"])
			}
		})
	}
}

func TestGenerateDefaultsIterations(t *testing.T) {
	server := newTestServer(t, nil)

	resp := postGenerate(t, server, `{"text":"ctx","caption":"cap"}`)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	final := pollStatus(t, server, accepted.JobID, string(domain.JobStatusCompleted))
	if total, _ := final["total_iterations"].(float64); int(total) != 3 {
		t.Fatalf("total_iterations = %v, want default of 3", final["total_iterations"])
	}
}

// unavailableStore simulates a job store whose backend is unreachable.
type unavailableStore struct {
	*jobs.MemoryStore
}

func (s *unavailableStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return nil, errors.New("connection refused")
}

func TestStatusBackendError(t *testing.T) {
	runs, err := storage.NewRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunStore returned error: %v", err)
	}
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:         &unavailableStore{MemoryStore: jobs.NewMemoryStore()},
		Runs:          runs,
		Factory:       fakeFactory(runs, nil),
		Logger:        zerolog.Nop(),
		MaxConcurrent: 1,
	})
	app := handlers.NewApp(svc, zerolog.Nop())
	server := httptest.NewServer(httpapi.NewRouter(app, zerolog.Nop()))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/status/some-job")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a backend error", resp.StatusCode)
	}
	if body["error"] != "internal" {
		t.Errorf("error code = %q, want internal", body["error"])
	}
}

func TestStatusUnknownJob(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/api/status/no-such-job")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["error"] != "not_found" {
		t.Errorf("error code = %q, want not_found", body["error"])
	}
}

func TestResultBeforeTerminal(t *testing.T) {
	gate := make(chan struct{})
	server := newTestServer(t, gate)

	resp := postGenerate(t, server, `{"text":"ctx","caption":"cap","iterations":1}`)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)

	resultResp, err := http.Get(server.URL + "/api/result/" + accepted.JobID)
	if err != nil {
		t.Fatalf("GET /api/result failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resultResp, &body)
	if resultResp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resultResp.StatusCode)
	}
	if body["error"] != "not_ready" {
		t.Errorf("error code = %q, want not_ready", body["error"])
	}

	close(gate)
	pollStatus(t, server, accepted.JobID, string(domain.JobStatusCompleted))
}

func TestResultUnknownJob(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/api/result/no-such-job")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestImageRejectsEscapes(t *testing.T) {
	server := newTestServer(t, nil)

	resp := postGenerate(t, server, `{"text":"ctx","caption":"cap","iterations":1}`)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)
	pollStatus(t, server, accepted.JobID, string(domain.JobStatusCompleted))

	for _, name := range []string{"missing.png", "..%2Fsecret.png", "%2e%2e%2fsecret.png"} {
		imgResp, err := http.Get(server.URL + "/api/result/" + accepted.JobID + "/image/" + name)
		if err != nil {
			t.Fatalf("GET image failed: %v", err)
		}
		imgResp.Body.Close()
		if imgResp.StatusCode != http.StatusNotFound {
			t.Errorf("image %q status = %d, want 404", name, imgResp.StatusCode)
		}
	}

	imgResp, err := http.Get(server.URL + "/api/result/no-such-job/image/diagram_iter_1.png")
	if err != nil {
		t.Fatalf("GET image failed: %v", err)
	}
	imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusNotFound {
		t.Errorf("image for unknown job status = %d, want 404", imgResp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET /v1/healthz failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status ok", body)
	}
}

func TestFailedJobResult(t *testing.T) {
	runs, err := storage.NewRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunStore returned error: %v", err)
	}
	factory := jobs.FactoryFunc(func(runDir string, iterations int, sink pipeline.Sink) (jobs.Runner, error) {
		return runnerFunc(func(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error) {
			path, werr := runs.Write(runDir, "diagram_iter_1.png", []byte("png"))
			if werr != nil {
				return nil, werr
			}
			sink.IterationDone(ctx, domain.IterationResult{Iteration: 1, ImagePath: path, Verdict: "ok"})
			return nil, fmt.Errorf("visualizer (iteration 2): provider unavailable")
		}), nil
	})
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:         jobs.NewMemoryStore(),
		Runs:          runs,
		Factory:       factory,
		Logger:        zerolog.Nop(),
		MaxConcurrent: 1,
	})
	app := handlers.NewApp(svc, zerolog.Nop())
	server := httptest.NewServer(httpapi.NewRouter(app, zerolog.Nop()))
	t.Cleanup(server.Close)

	resp := postGenerate(t, server, `{"text":"ctx","caption":"cap","iterations":3}`)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)

	status := pollStatus(t, server, accepted.JobID, string(domain.JobStatusFailed))
	if errMsg, _ := status["error"].(string); !strings.Contains(errMsg, "provider unavailable") {
		t.Errorf("error = %q, want cause surfaced", errMsg)
	}

	resultResp, err := http.Get(server.URL + "/api/result/" + accepted.JobID)
	if err != nil {
		t.Fatalf("GET /api/result failed: %v", err)
	}
	if resultResp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d, want 200 for terminal job", resultResp.StatusCode)
	}
	var result struct {
		Status          string   `json:"status"`
		FinalImage      string   `json:"final_image"`
		IterationImages []string `json:"iteration_images"`
		Error           string   `json:"error"`
	}
	decodeBody(t, resultResp, &result)
	if result.Status != string(domain.JobStatusFailed) {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if result.FinalImage != "" {
		t.Errorf("final_image = %q, want empty for failed job", result.FinalImage)
	}
	if result.Error == "" {
		t.Error("failed result has empty error")
	}
}
