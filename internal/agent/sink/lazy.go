package sink

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/triage-assist/server/internal/agent/model"
	logx "github.com/triage-assist/server/pkg/logger"
)

var ErrClosed = errors.New("triage sink closed")

// Lazy opens the SQL sink on first use. Concurrent first callers share one
// connection attempt; a failed attempt is retried by the next caller.
type Lazy struct {
	cfg   model.SinkConfig
	group singleflight.Group

	mu     sync.Mutex
	sink   *SQLSink
	closed bool
}

func NewLazy(cfg model.SinkConfig) *Lazy {
	return &Lazy{cfg: cfg}
}

func (l *Lazy) get(ctx context.Context) (*SQLSink, error) {
	l.mu.Lock()
	s, closed := l.sink, l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if s != nil {
		return s, nil
	}

	v, err, _ := l.group.Do("open", func() (any, error) {
		l.mu.Lock()
		if l.sink != nil {
			s := l.sink
			l.mu.Unlock()
			return s, nil
		}
		l.mu.Unlock()

		opened, err := Open(ctx, l.cfg)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			opened.Close()
			return nil, ErrClosed
		}
		l.sink = opened
		logx.Info().Str("driver", opened.driver).Msg("Triage sink connected")
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SQLSink), nil
}

func (l *Lazy) Append(ctx context.Context, rec model.TriageRecord) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Append(ctx, rec)
}

func (l *Lazy) List(ctx context.Context, limit int) ([]model.TriageRecord, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, limit)
}

// Close tears down the connection if one was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}

var (
	_ model.TriageSink   = (*Lazy)(nil)
	_ model.RecordLister = (*Lazy)(nil)
)
