// Package api is the HTTP layer over the task manager.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/aristath/docforge/internal/events"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/steps"
	"github.com/aristath/docforge/internal/task"
	"github.com/aristath/docforge/internal/techstack"
	"github.com/aristath/docforge/internal/workspace"
)

// DefaultStreamInterval is the period of status pushes on a task stream.
const DefaultStreamInterval = time.Second

// Handler serves task submission, status and downloads.
type Handler struct {
	tasks     *task.Manager
	run       task.Runner
	workspace *workspace.Manager
	stacksDir string
	bus       *events.EventBus
	interval  time.Duration
	now       func() time.Time
}

// NewHandler creates a handler that runs submitted tasks with run. bus may be
// nil, in which case streams only poll.
func NewHandler(tasks *task.Manager, run task.Runner, ws *workspace.Manager, stacksDir string, bus *events.EventBus) *Handler {
	return &Handler{
		tasks:     tasks,
		run:       run,
		workspace: ws,
		stacksDir: stacksDir,
		bus:       bus,
		interval:  DefaultStreamInterval,
		now:       time.Now,
	}
}

// GenerateResponse is returned for an accepted submission.
type GenerateResponse struct {
	TaskID string `json:"task_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARNING: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Generate handles POST /api/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req project.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(h.now()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stack, err := techstack.Load(h.stacksDir, req.TechStack)
	if err != nil {
		if errors.Is(err, techstack.ErrUnknownStack) {
			writeError(w, http.StatusBadRequest, "unsupported tech stack: "+req.TechStack)
			return
		}
		log.Printf("ERROR: failed to load tech stack %s: %v", req.TechStack, err)
		writeError(w, http.StatusInternalServerError, "failed to load tech stack")
		return
	}

	id, err := h.tasks.Submit(h.run, project.NewContext(req, stack))
	if err != nil {
		log.Printf("ERROR: failed to submit task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{TaskID: id})
}

// TechStacks handles GET /api/tech-stacks
func (h *Handler) TechStacks(w http.ResponseWriter, r *http.Request) {
	stacks, err := techstack.LoadAll(h.stacksDir)
	if err != nil {
		log.Printf("ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list tech stacks")
		return
	}
	writeJSON(w, http.StatusOK, stacks)
}

// ListTasks handles GET /api/tasks, newest first.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	states := h.tasks.List()
	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.After(states[j].CreatedAt)
	})

	out := make([]task.Projection, 0, len(states))
	for _, st := range states {
		out = append(out, st.Project())
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTask handles GET /api/task/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.tasks.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, st.Project())
}

// CancelTask handles POST /api/task/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if !h.tasks.Cancel(mux.Vars(r)["id"]) {
		writeError(w, http.StatusBadRequest, "task cannot be cancelled, it is finished or does not exist")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: task.CancelRequestedMessage})
}

// ResumeTask handles POST /api/task/{id}/resume
func (h *Handler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	err := h.tasks.Resume(h.run, mux.Vars(r)["id"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, messageResponse{Message: task.ResumedMessage})
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, task.ErrNotResumable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("ERROR: failed to resume task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to resume task")
	}
}

// Download handles GET /api/download/{id}/{doc}. The doc "all" serves the bundle.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, doc := vars["id"], vars["doc"]
	if doc == "all" {
		doc = steps.DocBundle
	}

	st, ok := h.tasks.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if st.Status != task.StatusCompleted {
		writeError(w, http.StatusBadRequest, "task is not completed")
		return
	}
	rel, ok := st.OutputFiles[doc]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown document: "+doc)
		return
	}

	path, err := h.workspace.Resolve(id, rel)
	if err != nil {
		log.Printf("WARNING: task %s output %s rejected: %v", id, doc, err)
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found, it may have expired")
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}
