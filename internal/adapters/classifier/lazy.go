package classifier

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// LoadFunc builds the underlying classifier
type LoadFunc func(ctx context.Context) (core.Classifier, error)

// Lazy loads a classifier exactly once. A failed load is logged and the
// classifier stays unavailable for the life of the process.
type Lazy struct {
	name   string
	load   LoadFunc
	once   sync.Once
	inner  core.Classifier
	logger *zap.Logger
}

// NewLazy creates a classifier that loads on first use or on Load
func NewLazy(name string, load LoadFunc, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{
		name:   name,
		load:   load,
		logger: logger,
	}
}

// Load runs the loader if it has not run yet
func (l *Lazy) Load(ctx context.Context) {
	l.once.Do(func() {
		c, err := l.load(ctx)
		if err != nil {
			l.logger.Warn("Could not load classifier, continuing without it",
				zap.String("classifier", l.name),
				zap.Error(err))
			l.inner = NewUnavailable(err.Error())
			return
		}
		if c == nil {
			l.inner = NewUnavailable("no classifier")
			return
		}

		l.inner = c
		l.logger.Info("Classifier loaded", zap.String("classifier", l.name))
	})
}

// Available reports whether the loaded classifier can serve
func (l *Lazy) Available() bool {
	l.Load(context.Background())
	return l.inner.Available()
}

// Predict delegates to the loaded classifier
func (l *Lazy) Predict(ctx context.Context, text string) (string, float64, error) {
	l.Load(ctx)
	return l.inner.Predict(ctx, text)
}

// Close releases the loaded classifier's resources, if any
func (l *Lazy) Close() error {
	if closer, ok := l.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
