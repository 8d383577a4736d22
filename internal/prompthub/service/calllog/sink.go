// Package calllog is the fire-and-forget sink for resolved-call records:
// a bounded queue drained by a background writer, with drop-oldest overflow.
package calllog

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/logger"
)

var droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "prompthub_calllog_dropped_total",
	Help: "Call log records dropped because the queue was full.",
})

const (
	defaultQueueSize  = 1024
	defaultMaxContent = 4096
	writeTimeout      = 5 * time.Second
)

// Sink buffers call logs and writes them asynchronously. Enqueue never
// blocks: a full queue evicts the oldest record and counts the drop.
type Sink struct {
	store      repo.CallLogRepository
	queue      chan *entity.CallLog
	maxContent int

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSink starts the background writer. queueSize and maxContent fall back
// to 1024 and 4096 when non-positive.
func NewSink(store repo.CallLogRepository, queueSize, maxContent int) *Sink {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if maxContent <= 0 {
		maxContent = defaultMaxContent
	}
	s := &Sink{
		store:      store,
		queue:      make(chan *entity.CallLog, queueSize),
		maxContent: maxContent,
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue accepts a record and returns immediately. Rendered content is
// truncated to the configured maximum before buffering.
func (s *Sink) Enqueue(log *entity.CallLog) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	log.RenderedContent = truncate(log.RenderedContent, s.maxContent)
	for {
		select {
		case s.queue <- log:
			s.mu.Unlock()
			return
		default:
		}
		select {
		case <-s.queue:
			droppedTotal.Inc()
		default:
		}
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for log := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.store.Append(ctx, log); err != nil {
			logger.WithFields(logrus.Fields{"scene_id": log.SceneID, "prompt_id": log.PromptID, "err": err.Error()}).
				Warn("call log write failed")
		}
		cancel()
	}
}

// Close stops accepting records and drains the queue before returning.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
