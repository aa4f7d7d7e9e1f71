package extract

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/libriscan/libriscan/internal/entity"
)

// Images resolves page image paths under a root directory.
type Images struct {
	Root string
}

func (i Images) Path(p entity.Page) (string, error) {
	if p.ImagePath == "" {
		return "", errors.New("page has no image")
	}
	if filepath.IsAbs(p.ImagePath) {
		return p.ImagePath, nil
	}
	return filepath.Join(i.Root, filepath.Clean(string(filepath.Separator)+p.ImagePath)), nil
}

func (i Images) Read(p entity.Page) ([]byte, error) {
	path, err := i.Path(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
