package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/finalize"
	"server/internal/infra"
	"server/internal/pipeline"
	"server/internal/providers/likeness"
	"server/internal/storage"
)

// App bundles the handler dependencies. Handlers are thin pass-through
// wrappers; every decision of consequence lives in the pipeline, the gate and
// the repositories.
type App struct {
	Jobs      domain.JobRepository
	Store     storage.ArtifactStore
	Pipeline  *pipeline.Orchestrator
	Finalizer *finalize.Finalizer
	Scorer    likeness.Scorer
	Flags     finalize.Flags
	Cfg       *infra.Config
	Log       infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
