package embedding

import (
	"context"
	"sync"

	"github.com/askdesk/backend/internal/domain"
)

// Embedder maps text to a fixed-dimension dense vector. Implementations
// must be deterministic for a given model version: embedding the same text
// twice within a process yields bit-identical vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Lazy defers construction of an Embedder to first use and guarantees the
// underlying model is loaded exactly once, even under concurrent first use
// from multiple pipelines. A failed load is sticky; the process is expected
// to restart rather than retry a broken model.
type Lazy struct {
	load func() (Embedder, error)
	dim  int

	once sync.Once
	e    Embedder
	err  error
}

// NewLazy wraps a load function. dim is the dimension the loaded model is
// expected to produce; it is validated on first load.
func NewLazy(dim int, load func() (Embedder, error)) *Lazy {
	return &Lazy{load: load, dim: dim}
}

func (l *Lazy) get() (Embedder, error) {
	l.once.Do(func() {
		e, err := l.load()
		if err != nil {
			l.err = err
			return
		}
		if e.Dimension() != l.dim {
			l.err = &domain.DimensionMismatchError{Got: e.Dimension(), Want: l.dim}
			return
		}
		l.e = e
	})
	return l.e, l.err
}

func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}

func (l *Lazy) Dimension() int {
	return l.dim
}
