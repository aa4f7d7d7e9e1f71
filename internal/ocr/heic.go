package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// convertHEICtoPNG converts a HEIC/HEIF page to a temporary PNG.
// converter: "heif-convert" | "magick" | "sips". Call cleanup to remove the temp dir.
func convertHEICtoPNG(ctx context.Context, r Runner, converter, in string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "libriscan-heic-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out)
	default:
		return "", cleanup, errors.New("HEIC not supported: set extraction.heic_converter to one of: heif-convert | magick | sips")
	}
	if err != nil {
		return "", cleanup, fmt.Errorf("%s failed: %w: %s", converter, err, truncate(string(errb), 512))
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return "", cleanup, fmt.Errorf("HEIC conversion produced no output: %w", statErr)
	}
	return out, cleanup, nil
}
