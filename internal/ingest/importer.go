package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/repository"
)

// Importer appends images to a document as new pages, numbered after the
// document's last page. Images under the storage root are stored by relative path.
type Importer struct {
	pages  repository.PageRepository
	root   string
	logger *slog.Logger

	// serializes page numbering per process
	mu sync.Mutex
}

func NewImporter(pages repository.PageRepository, imageRoot string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	root := imageRoot
	if abs, err := filepath.Abs(imageRoot); err == nil {
		root = abs
	}
	return &Importer{pages: pages, root: root, logger: logger}
}

// docState is what is already known about a document's pages.
type docState struct {
	next   int
	byPath map[string]*entity.Page
	byHash map[string]*entity.Page
}

func (i *Importer) load(ctx context.Context, doc *entity.Document) (*docState, error) {
	existing, err := i.pages.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	st := &docState{next: 1, byPath: map[string]*entity.Page{}, byHash: map[string]*entity.Page{}}
	for _, p := range existing {
		if p.Number >= st.next {
			st.next = p.Number + 1
		}
		if p.ImagePath == "" {
			continue
		}
		st.byPath[p.ImagePath] = p
		if sum, err := hashFile(i.resolve(p.ImagePath)); err == nil {
			st.byHash[sum] = p
		}
	}
	return st, nil
}

func (i *Importer) resolve(stored string) string {
	if filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(i.root, filepath.FromSlash(stored))
}

// storedPath makes abs relative to the image root when it lies inside it.
func (i *Importer) storedPath(abs string) string {
	rel, err := filepath.Rel(i.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ImportPath registers a single image as the document's next page. An image
// already registered, by path or by content, is reported as a duplicate.
func (i *Importer) ImportPath(ctx context.Context, doc *entity.Document, path string) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	st, err := i.load(ctx, doc)
	if err != nil {
		return Result{SourcePath: path}, err
	}
	return i.importOne(ctx, doc, st, path)
}

func (i *Importer) importOne(ctx context.Context, doc *entity.Document, st *docState, path string) (Result, error) {
	out := Result{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	if !AllowedExt(filepath.Ext(abs)) {
		return out, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}
	stored := i.storedPath(abs)
	out.ImagePath = stored
	if p, ok := st.byPath[stored]; ok {
		out.Duplicate, out.PageID, out.PageNumber = true, p.ID, p.Number
		return out, nil
	}

	sum, err := hashFile(abs)
	if err != nil {
		return out, err
	}
	out.HashHex = sum
	if p, ok := st.byHash[sum]; ok {
		out.Duplicate, out.PageID, out.PageNumber = true, p.ID, p.Number
		return out, nil
	}

	page, err := i.pages.Create(ctx, doc.ID, st.next, stored)
	if err != nil {
		return out, err
	}
	st.next++
	st.byPath[stored] = page
	st.byHash[sum] = page
	out.PageID, out.PageNumber = page.ID, page.Number
	i.logger.Info("page imported", "document_id", doc.ID, "page_id", page.ID, "number", page.Number, "image_path", stored)
	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ImportDirectory walks root and imports every page image in lexical path order,
// so zero-padded file names become consecutive pages.
func (i *Importer) ImportDirectory(ctx context.Context, doc *entity.Document, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		results []Result
		stats   DirStats
		matched []string
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		matched = append(matched, path)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(matched)

	i.mu.Lock()
	defer i.mu.Unlock()
	st, err := i.load(ctx, doc)
	if err != nil {
		return results, stats, err
	}
	for _, path := range matched {
		if err := ctx.Err(); err != nil {
			return results, stats, err
		}
		r, err := i.importOne(ctx, doc, st, path)
		if err != nil {
			i.logger.Warn("page import failed", "path", path, "err", err)
			r.Err = err.Error()
			stats.Failed++
		} else if r.Duplicate {
			stats.Duplicates++
		} else {
			stats.Succeeded++
		}
		results = append(results, r)
	}
	return results, stats, nil
}
