// Package api exposes the conversion pipeline over HTTP: asynchronous
// conversion jobs with JSON status, IFC output download, and a WebSocket
// channel broadcasting job progress.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/internal/logging"
)

// maxUploadBytes bounds conversion request bodies (64 MiB).
const maxUploadBytes = 64 << 20

// ConvertFunc runs one conversion over raw ST-Bridge data and returns the
// result together with the serialized IFC document.
type ConvertFunc func(data []byte, mode model.ConversionMode) (*model.ConversionResult, []byte, error)

// Server is the HTTP conversion service.
type Server struct {
	jobs    *JobStore
	hub     *Hub
	convert ConvertFunc
	mux     *http.ServeMux
}

// NewServer creates a server around convert and starts its WebSocket hub.
func NewServer(convert ConvertFunc) *Server {
	s := &Server{
		jobs:    NewJobStore(),
		hub:     NewHub(),
		convert: convert,
		mux:     http.NewServeMux(),
	}
	go s.hub.Run()

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/convert", s.handleConvert)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /api/jobs/{id}/output", s.handleJobOutput)
	s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the progress hub, for callers that broadcast their own
// events.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConvert accepts an ST-Bridge document in the request body and
// starts an asynchronous conversion job. The optional mode query parameter
// selects the conversion strategy; it defaults to auto.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	mode := model.ModeAuto
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode = model.ConversionMode(raw)
		if !mode.IsValid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", raw))
			return
		}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "reading request body: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}

	inputName := r.URL.Query().Get("name")
	if inputName == "" {
		inputName = "upload.stb"
	}

	job := s.jobs.Create(inputName, mode)
	go s.runJob(job.ID, data, mode)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	output, ok := s.jobs.Output(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no output for job")
		return
	}
	w.Header().Set("Content-Type", "application/x-step")
	w.Header().Set("Content-Disposition", `attachment; filename="model.ifc"`)
	w.WriteHeader(http.StatusOK)
	w.Write(output)
}

// runJob executes one conversion, publishing progress to the hub as it
// moves through the pipeline stages.
func (s *Server) runJob(id string, data []byte, mode model.ConversionMode) {
	s.jobs.SetRunning(id, 10)
	s.hub.Broadcast(ProgressMessage{
		Type: "progress", JobID: id, Stage: "parsing", Progress: 10,
		Message: "parsing ST-Bridge document",
	})

	result, output, err := s.convert(data, mode)
	if err != nil {
		s.jobs.Fail(id, err.Error())
		s.hub.Broadcast(ProgressMessage{
			Type: "error", JobID: id, Stage: "conversion", Progress: 0,
			Message: err.Error(),
		})
		logging.Error("conversion job failed", "job", id, "error", err)
		return
	}

	s.jobs.Complete(id, result, output)
	s.hub.Broadcast(ProgressMessage{
		Type: "complete", JobID: id, Stage: "done", Progress: 100,
		Message: fmt.Sprintf("created %d elements", result.Statistics.CreatedElements),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
