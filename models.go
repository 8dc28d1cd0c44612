package main

import (
	"formcoach/core"
	"formcoach/storage"
)

type AnalyzeRequest struct {
	VideoPath string `json:"video_path"`
	Exercise  string `json:"exercise"`
}

type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "completed", "failed", "skipped"
	Error  string `json:"error,omitempty"`
}

type AnalyzeResponse struct {
	SessionID string               `json:"session_id"`
	Message   string               `json:"message"`
	Steps     []Step               `json:"steps"`
	Warnings  []string             `json:"warnings,omitempty"`
	Result    *core.AnalysisResult `json:"result,omitempty"`
	Summary   string               `json:"summary,omitempty"`
	ResultID  string               `json:"result_id,omitempty"`
}

type ResultResponse struct {
	SessionID string              `json:"session_id"`
	ResultID  string              `json:"result_id"`
	Result    core.AnalysisResult `json:"result"`
	Summary   string              `json:"summary"`
}

type ReferenceRequest struct {
	Exercise string             `json:"exercise"`
	Label    string             `json:"label"`
	Angles   map[string]float64 `json:"angles"`
}

type MatchRequest struct {
	Exercise string             `json:"exercise"`
	Angles   map[string]float64 `json:"angles"`
	TopK     int                `json:"top_k"`
}

type MatchResponse struct {
	Exercise string                   `json:"exercise"`
	Matches  []storage.ReferenceMatch `json:"matches"`
}

type HealthResponse struct {
	Status         string   `json:"status"`
	ResultStore    string   `json:"result_store"`
	ReferenceStore string   `json:"reference_store"`
	Coach          string   `json:"coach"`
	Exercises      []string `json:"exercises"`
}
