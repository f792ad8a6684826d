package handlers

import (
	"encoding/json"
	"net/http"

	"diagramd/internal/infra"
	"diagramd/internal/jobs"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Jobs   *jobs.Service
	Logger infra.Logger
	// DefaultIterations is applied when a request omits the iteration
	// count. Zero falls back to 3.
	DefaultIterations int
}

func NewApp(svc *jobs.Service, logger infra.Logger) *App {
	return &App{Jobs: svc, Logger: logger}
}

func (a *App) defaultIterations() int {
	if a.DefaultIterations >= infra.MinRefinementIterations && a.DefaultIterations <= infra.MaxRefinementIterations {
		return a.DefaultIterations
	}
	return 3
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
