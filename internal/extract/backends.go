package extract

import (
	"log/slog"

	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/ocr"
)

// NewRegistryFromConfig registers the Test, AWS and local Tesseract backends.
func NewRegistryFromConfig(cfg common.ExtractionConfig, storage common.StorageConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	images := Images{Root: storage.ImageRoot}

	dummy, err := NewDummy(cfg.FixturePath, logger.With("backend", "test"))
	if err != nil {
		return nil, err
	}
	aws := NewTextract(TextractConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Attempts:        cfg.RetryAttempts,
	}, images, nil, logger.With("backend", "aws"))

	tessLogger := logger.With("backend", "tesseract")
	tess := NewTesseract(ocr.NewTesseract(ocr.Config{
		Tesseract:     cfg.Tesseract,
		Language:      cfg.Language,
		TessdataDir:   cfg.TessdataDir,
		HeicConverter: cfg.HeicConverter,
		PSM:           cfg.PSM,
	}, nil, tessLogger), images, tessLogger)

	return NewRegistry(dummy, aws, tess), nil
}
