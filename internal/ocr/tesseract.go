package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/libriscan/libriscan/constants"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	Language      string // default "eng"
	TessdataDir   string
	HeicConverter string // heif-convert | magick | sips

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

// Page is a tesseract run over one image.
type Page struct {
	Words         []Word
	Width, Height int
}

type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Recognize runs tesseract in TSV mode over the image at path.
func (t *Tesseract) Recognize(ctx context.Context, path string) (*Page, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if constants.IsHEICExt(ext) {
		out, cleanup, err := convertHEICtoPNG(ctx, t.runner, t.cfg.HeicConverter, path)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			t.logger.Error("heic conversion failed", "path", path, "error", err)
			return nil, err
		}
		path = out
	} else if !constants.IsImageExt(ext) {
		return nil, fmt.Errorf("unsupported page image extension: %q", ext)
	}

	w, h, err := Dimensions(path)
	if err != nil {
		return nil, err
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path)...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	words, err := ParseTSV(out)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("tesseract finished", "path", path, "words", len(words), "mean_conf", MeanConfidence(words))
	return &Page{Words: words, Width: w, Height: h}, nil
}

func (t *Tesseract) args(path string) []string {
	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, "tsv")
}
