package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"diagramd/internal/domain"
	"diagramd/internal/infra"
)

type generateRequest struct {
	Text       string `json:"text"`
	Caption    string `json:"caption"`
	Iterations int    `json:"iterations"`
}

type generateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type statusResponse struct {
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	Phase           string `json:"phase,omitempty"`
	Agent           string `json:"agent,omitempty"`
	Iteration       int    `json:"iteration,omitempty"`
	TotalIterations int    `json:"total_iterations"`
	Progress        string `json:"progress,omitempty"`
	Error           string `json:"error,omitempty"`
}

type resultResponse struct {
	JobID           string   `json:"job_id"`
	Status          string   `json:"status"`
	FinalImage      string   `json:"final_image,omitempty"`
	IterationImages []string `json:"iteration_images"`
	Error           string   `json:"error,omitempty"`
}

// Generate starts a new diagram generation job and returns immediately.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	if strings.TrimSpace(req.Caption) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "caption is required")
		return
	}
	if req.Iterations == 0 {
		req.Iterations = a.defaultIterations()
	}

	input := domain.GenerationInput{
		SourceContext:       req.Text,
		CommunicativeIntent: req.Caption,
	}
	jobID, err := a.Jobs.Submit(r.Context(), input, req.Iterations)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request",
				fmt.Sprintf("iterations must be between %d and %d", infra.MinRefinementIterations, infra.MaxRefinementIterations))
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.json(w, http.StatusAccepted, generateResponse{JobID: jobID, Status: string(domain.JobStatusQueued)})
}

// Status reports the current lifecycle snapshot of a job.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: status failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, statusResponse{
		JobID:           job.ID,
		Status:          string(job.Status),
		Phase:           string(job.Phase),
		Agent:           string(job.Agent),
		Iteration:       job.Iteration,
		TotalIterations: job.TotalIterations,
		Progress:        job.Progress,
		Error:           job.Error,
	})
}

// Result returns image references once the job reached a terminal status.
func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Result(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNotReady):
			a.error(w, http.StatusConflict, "not_ready", "job has not completed yet")
		default:
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: result failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load result")
		}
		return
	}

	resp := resultResponse{
		JobID:           job.ID,
		Status:          string(job.Status),
		IterationImages: []string{},
		Error:           job.Error,
	}
	if job.Status == domain.JobStatusCompleted {
		if job.FinalImage != "" {
			resp.FinalImage = imageURL(job.ID, job.FinalImage)
		}
		for _, path := range job.IterationImages {
			resp.IterationImages = append(resp.IterationImages, imageURL(job.ID, path))
		}
	}
	a.json(w, http.StatusOK, resp)
}

// Image serves one artifact from the job's run directory. Names that
// resolve outside the run directory are rejected outright.
func (a *App) Image(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	filename := chi.URLParam(r, "filename")
	path, err := a.Jobs.ImagePath(r.Context(), jobID, filename)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	http.ServeFile(w, r, path)
}

func imageURL(jobID, imagePath string) string {
	return fmt.Sprintf("/api/result/%s/image/%s", jobID, filepath.Base(imagePath))
}
