package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
)

// Backend fetches the raw block list for one page from an OCR provider.
type Backend interface {
	Service() constants.CloudService
	Fetch(ctx context.Context, pc *entity.PageContext) ([]Block, error)
}

var (
	// ErrBackend matches every *BackendError.
	ErrBackend = errors.New("extraction backend error")
	// ErrNoBackend means the organization has no usable cloud service configured.
	ErrNoBackend = errors.New("no extraction backend configured")
)

// BackendError wraps a provider failure.
type BackendError struct {
	Service constants.CloudService
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service.Display(), e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func backendErr(service constants.CloudService, op string, err error) error {
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Service: service, Op: op, Err: err}
}

// Registry selects a backend by the organization's configured service.
type Registry struct {
	mu       sync.RWMutex
	backends map[constants.CloudService]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[constants.CloudService]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Service()] = b
}

func (r *Registry) Get(service constants.CloudService) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[service]
	return b, ok
}

// For returns the backend serving the page's organization.
func (r *Registry) For(pc *entity.PageContext) (Backend, error) {
	if pc.CloudService == nil {
		return nil, ErrNoBackend
	}
	b, ok := r.Get(pc.CloudService.Service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, pc.CloudService.Service.Display())
	}
	return b, nil
}
