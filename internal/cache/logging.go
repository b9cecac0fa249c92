package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// LoggingStore wraps a Store with structured logging. The handler name
// tags every line so stores of different handlers stay distinguishable.
type LoggingStore struct {
	inner   Store
	handler string
}

// NewLoggingStore returns a store that logs every operation.
func NewLoggingStore(inner Store, handler string) *LoggingStore {
	return &LoggingStore{inner: inner, handler: handler}
}

func (s *LoggingStore) Load(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Load(ctx)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("store_load",
			zap.String("handler", s.handler),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	logger.Info("store_load",
		zap.String("handler", s.handler),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}

	fields := []zap.Field{
		zap.String("handler", s.handler),
		zap.String("key", key),
		zap.String("result", result),
		zap.Duration("latency", time.Since(start)),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("store_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("store_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, value)

	fields := []zap.Field{
		zap.String("handler", s.handler),
		zap.String("key", key),
		zap.Int("bytes", len(value)),
		zap.Duration("latency", time.Since(start)),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("store_put", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("store_put", fields...)
	}

	return err
}

func (s *LoggingStore) Flush(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Flush(ctx)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("store_flush",
			zap.String("handler", s.handler),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	logger.Debug("store_flush",
		zap.String("handler", s.handler),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}
