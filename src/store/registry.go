package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wumpus-archiver/archiver/src/oops"
)

var ErrUnknownStore = errors.New("unknown store")

type Opener func(ctx context.Context, name string) (Store, error)

// Registry opens stores by name on first use and keeps them open until
// Close.
type Registry struct {
	mu      sync.Mutex
	openers map[string]Opener
	open    map[string]Store
}

func NewRegistry() *Registry {
	return &Registry{
		openers: make(map[string]Opener),
		open:    make(map[string]Store),
	}
}

func (r *Registry) Register(name string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = opener
}

func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.openers[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Get(ctx context.Context, name string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.open[name]; ok {
		return s, nil
	}
	opener, ok := r.openers[name]
	if !ok {
		return nil, oops.New(ErrUnknownStore, "no store named %q", name)
	}
	s, err := opener(ctx, name)
	if err != nil {
		return nil, oops.New(err, "failed to open store %q", name)
	}
	r.open[name] = s
	return s, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, s := range r.open {
		if err := s.Close(); err != nil {
			errs = append(errs, oops.New(err, "failed to close store %q", name))
		}
		delete(r.open, name)
	}
	return errors.Join(errs...)
}
