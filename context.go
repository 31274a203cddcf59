package video_downloader

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// A context-aware io.Reader wrapper, so that long copies stop when a download is cancelled.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// NewContextReader returns an io.Reader that fails with ctx.Err() once ctx is done.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &readerContext{ctx: ctx, r: r}
}

type loggerKey struct{}

// WithLogger attaches a logger to the context, for code that only receives a context.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger attached by WithLogger, or the global sugared logger.
func Logger(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && logger != nil {
		return logger
	}
	return zap.S()
}
