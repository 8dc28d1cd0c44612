package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"formcoach/coach"
	"formcoach/config"
	"formcoach/core"
	"formcoach/processors"
	"formcoach/rules"
	"formcoach/storage"
)

// Shared service state, initialized in main before the server starts.
var (
	appConfig      *config.Config
	pipeline       *processors.Pipeline
	registry       = rules.NewRegistry()
	resultStore    storage.ResultStore
	referenceStore storage.ReferenceStore
	cueWriter      coach.CueWriter
)

// analyzeHandler runs the full video analysis for one session: frame
// extraction, the pose pipeline, coaching summary, and persistence.
func analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VideoPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "video_path is required"})
		return
	}
	if req.Exercise == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise is required"})
		return
	}

	response := AnalyzeResponse{
		SessionID: newID(),
		Steps:     make([]Step, 0),
		Warnings:  make([]string, 0),
	}

	log.Printf("session %s: analyzing %q video %s", response.SessionID, req.Exercise, req.VideoPath)
	markSession(r.Context(), response.SessionID, storage.SessionProcessing)
	frames, err := extractFrames(req.VideoPath, response.SessionID, appConfig.TargetFPS)
	if err != nil {
		markSession(r.Context(), response.SessionID, storage.SessionFailed)
		response.Steps = append(response.Steps, Step{Name: "extract_frames", Status: "failed", Error: err.Error()})
		response.Message = "Frame extraction failed"
		writeJSON(w, statusFor(err), response)
		return
	}
	response.Steps = append(response.Steps, Step{Name: "extract_frames", Status: "completed"})

	result, err := pipeline.Analyze(r.Context(), frames, req.Exercise)
	if err != nil {
		markSession(r.Context(), response.SessionID, storage.SessionFailed)
		response.Steps = append(response.Steps, Step{Name: "analyze", Status: "failed", Error: err.Error()})
		response.Message = "Analysis failed"
		writeJSON(w, statusFor(err), response)
		return
	}
	response.Steps = append(response.Steps, Step{Name: "analyze", Status: "completed"})
	response.Result = &result

	summary, err := cueWriter.Summarize(r.Context(), result)
	if err != nil {
		// The deterministic result stands on its own without a summary.
		response.Steps = append(response.Steps, Step{Name: "coach", Status: "skipped", Error: err.Error()})
		response.Warnings = append(response.Warnings, fmt.Sprintf("coach summary unavailable: %v", err))
	} else {
		response.Steps = append(response.Steps, Step{Name: "coach", Status: "completed"})
		response.Summary = summary
	}

	resultID, err := resultStore.SaveResult(r.Context(), response.SessionID, result, summary)
	if err != nil {
		response.Steps = append(response.Steps, Step{Name: "persist", Status: "failed", Error: err.Error()})
		response.Warnings = append(response.Warnings, fmt.Sprintf("result not persisted: %v", err))
	} else {
		response.Steps = append(response.Steps, Step{Name: "persist", Status: "completed"})
		response.ResultID = resultID
	}

	if err := saveJSON(filepath.Join(dataRoot(), response.SessionID, "result.json"), result); err != nil {
		response.Warnings = append(response.Warnings, fmt.Sprintf("result artifact not written: %v", err))
	}

	markSession(r.Context(), response.SessionID, storage.SessionCompleted)
	response.Message = "Analysis completed"
	writeJSON(w, http.StatusOK, response)
}

func markSession(ctx context.Context, sessionID, status string) {
	if err := resultStore.MarkSession(ctx, sessionID, status); err != nil {
		log.Printf("session %s: failed to record status %q: %v", sessionID, status, err)
	}
}

func resultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}

	stored, err := resultStore.GetResult(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{
		SessionID: stored.SessionID,
		ResultID:  stored.ResultID,
		Result:    stored.Result,
		Summary:   stored.Summary,
	})
}

// referenceHandler stores one labeled expert pose for an exercise.
func referenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req ReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Exercise == "" || req.Label == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise and label are required"})
		return
	}

	pose := storage.ReferencePose{Exercise: req.Exercise, Label: req.Label, Angles: core.AngleSample(req.Angles)}
	if err := referenceStore.Upsert(r.Context(), pose); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "exercise": req.Exercise, "label": req.Label})
}

// matchHandler answers which stored reference poses a set of measured angles
// is closest to.
func matchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Exercise == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise is required"})
		return
	}

	matches, err := referenceStore.Nearest(r.Context(), req.Exercise, core.AngleSample(req.Angles), req.TopK)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{Exercise: req.Exercise, Matches: matches})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	coachKind := "template"
	if appConfig.HasValidAPI() {
		coachKind = "llm"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		ResultStore:    appConfig.ResultStore,
		ReferenceStore: appConfig.ReferenceStore,
		Coach:          coachKind,
		Exercises:      registry.Exercises(),
	})
}

// statusFor maps the error taxonomy to HTTP: caller mistakes are 400,
// broken output invariants are 500.
func statusFor(err error) int {
	if core.IsInputError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
