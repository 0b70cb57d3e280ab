package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/certificate-manager/interfaces"
	"go.uber.org/atomic"
)

const DefaultRetryInterval = 5 * time.Second

// Source is the read side of the engine the archiver follows.
type Source interface {
	NotificationsAfter(seq uint64) []interfaces.Notification
	Changed() <-chan struct{}
}

// Archiver copies the notification log, and every certificate record as it
// was when approved, to a storage backend.
type Archiver struct {
	source        Source
	backend       interfaces.StorageBackend
	log           *slog.Logger
	retryInterval time.Duration
	namespace     string

	lastSeq  *atomic.Uint64
	archived *prometheus.CounterVec
	failures prometheus.Counter
}

type Option func(*Archiver)

func WithRetryInterval(d time.Duration) Option {
	return func(a *Archiver) { a.retryInterval = d }
}

// WithNamespace prefixes the archiver's metric names.
func WithNamespace(namespace string) Option {
	return func(a *Archiver) { a.namespace = namespace }
}

// WithStartSeq resumes archiving after seq.
func WithStartSeq(seq uint64) Option {
	return func(a *Archiver) { a.lastSeq.Store(seq) }
}

func NewArchiver(source Source, backend interfaces.StorageBackend, log *slog.Logger, opts ...Option) *Archiver {
	a := &Archiver{
		source:        source,
		backend:       backend,
		log:           log.With("component", "archiver", "backend", backend.Name()),
		retryInterval: DefaultRetryInterval,
		lastSeq:       atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.archived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: a.namespace,
		Name:      "archive_items_total",
		Help:      "Items written to the archive backend",
	}, []string{"type"})
	a.failures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: a.namespace,
		Name:      "archive_failures_total",
		Help:      "Failed archive attempts",
	})
	return a
}

// LastArchived returns the sequence number of the last notification written.
func (a *Archiver) LastArchived() uint64 {
	return a.lastSeq.Load()
}

// Run archives notifications in sequence order until ctx is cancelled. A
// notification that fails to archive is retried until it succeeds; later
// notifications wait for it.
func (a *Archiver) Run(ctx context.Context) error {
	a.log.Info("Archiver started", "location", a.backend.LocationURI(), "after", a.lastSeq.Load())

	for {
		// Subscribe before reading so an append between the two is not missed.
		changed := a.source.Changed()
		batch := a.source.NotificationsAfter(a.lastSeq.Load())

		for _, n := range batch {
			if err := a.archiveWithRetry(ctx, n); err != nil {
				return nil
			}
			a.lastSeq.Store(n.Seq)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			a.log.Info("Archiver stopped", "last", a.lastSeq.Load())
			return nil
		case <-changed:
		}
	}
}

func (a *Archiver) archiveWithRetry(ctx context.Context, n interfaces.Notification) error {
	for {
		err := a.archive(ctx, n)
		if err == nil {
			return nil
		}

		a.failures.Inc()
		a.log.Warn("Failed to archive notification, will retry", "seq", n.Seq, "kind", n.Kind.String(), "err", err, "retryIn", a.retryInterval)

		select {
		case <-ctx.Done():
			a.log.Info("Archiver stopped", "last", a.lastSeq.Load())
			return ctx.Err()
		case <-time.After(a.retryInterval):
		}
	}
}

func (a *Archiver) archive(ctx context.Context, n interfaces.Notification) error {
	if n.Kind == interfaces.CertificateApproved {
		if n.Certificate == nil {
			a.log.Error("Approval notification carries no certificate", "seq", n.Seq)
		} else if err := a.store(ctx, n.Certificate, interfaces.CertificateType); err != nil {
			return err
		}
	}

	return a.store(ctx, n, interfaces.NotificationType)
}

func (a *Archiver) store(ctx context.Context, v any, contentType interfaces.ContentType) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", contentType, err)
	}

	id, err := a.backend.Store(ctx, data, contentType)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", contentType, err)
	}

	a.archived.WithLabelValues(contentType.String()).Inc()
	a.log.Debug("Archived", "type", contentType.String(), "contentID", id.String())
	return nil
}

func (a *Archiver) Describe(ch chan<- *prometheus.Desc) {
	a.archived.Describe(ch)
	a.failures.Describe(ch)
}

func (a *Archiver) Collect(ch chan<- prometheus.Metric) {
	a.archived.Collect(ch)
	a.failures.Collect(ch)
}
