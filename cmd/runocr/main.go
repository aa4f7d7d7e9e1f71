package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/extract"
)

// runocr sends one image through an extraction backend and prints the placed
// words as JSON lines, without touching the database.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 || len(os.Args) > 3 {
		logger.Error("usage", "cmd", "runocr <image> [T|A|L]")
		os.Exit(2)
	}
	image, err := filepath.Abs(os.Args[1])
	if err != nil {
		logger.Error("invalid image path", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}
	service := constants.ServiceTesseract
	if len(os.Args) == 3 {
		service = constants.CloudService(os.Args[2])
		if !service.Valid() {
			logger.Error("unknown service", "service", os.Args[2])
			os.Exit(2)
		}
	}

	cfg, err := common.LoadConfig(os.Getenv("LIBRISCAN_CONFIG"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	registry, err := extract.NewRegistryFromConfig(cfg.Extraction, cfg.Storage, logger)
	if err != nil {
		logger.Error("build backends", "error", err)
		os.Exit(1)
	}
	backend, ok := registry.Get(service)
	if !ok {
		logger.Error("backend not registered", "service", service.Display())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pc := &entity.PageContext{
		Page:         entity.Page{ID: uuid.New(), Number: 1, ImagePath: image},
		CloudService: &entity.CloudService{Service: service},
	}
	start := time.Now()
	blocks, err := backend.Fetch(ctx, pc)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "service", service.Display(), "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	words, lines, _ := extract.Split(blocks)
	placed := extract.Layout(words, lines)
	enc := json.NewEncoder(os.Stdout)
	for _, p := range placed {
		tb := extract.ToTextBlock(pc.Page.ID, p, nil)
		_ = enc.Encode(tb.View())
	}

	logger.Info("text extraction OK",
		"service", service.Display(),
		"blocks", len(blocks),
		"words", len(placed),
		"lines", len(lines),
		"duration_ms", dur.Milliseconds(),
	)
}
