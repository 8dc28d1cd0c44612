package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"formcoach/coach"
	"formcoach/config"
	"formcoach/processors"
	"formcoach/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	appConfig = cfg

	if err := os.MkdirAll(dataRoot(), 0755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	ctx := context.Background()
	resultStore = storage.NewResultStore(ctx, cfg)
	referenceStore = storage.NewReferenceStore(ctx, cfg)
	log.Printf("stores initialized: results=%s references=%s", cfg.ResultStore, cfg.ReferenceStore)

	detector, err := processors.NewMediaPipeDetector(cfg.PythonBin)
	if err != nil {
		log.Fatalf("failed to init pose detector: %v", err)
	}
	pipeline = processors.NewPipeline(detector, registry, processors.PipelineConfig{
		MinConfidence:     cfg.MinConfidence,
		SampleCap:         cfg.SampleCap,
		Workers:           cfg.Workers,
		AllowGenericRules: cfg.AllowGenericRules,
	})

	cueWriter = coach.NewCueWriter(cfg)

	http.HandleFunc("/analyze", analyzeHandler)
	http.HandleFunc("/result", resultHandler)
	http.HandleFunc("/reference", referenceHandler)
	http.HandleFunc("/match", matchHandler)
	http.HandleFunc("/health", healthHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("formcoach listening on :%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
