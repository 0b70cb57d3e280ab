package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/certificate-manager/engine"
	"github.com/ruteri/certificate-manager/interfaces"
	"github.com/ruteri/certificate-manager/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	owner   = interfaces.Identity{0x01}
	signerA = interfaces.Identity{0x0a}
	signerB = interfaces.Identity{0x0b}
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(&engine.Config{
		Owner: owner,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e
}

// recorder captures what the archiver stores, in order.
type recorder struct {
	mu            sync.Mutex
	notifications []interfaces.Notification
	certificates  []interfaces.Certificate
}

func (r *recorder) onStore(args mock.Arguments) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := args.Get(1).([]byte)
	switch args.Get(2).(interfaces.ContentType) {
	case interfaces.NotificationType:
		var n interfaces.Notification
		if err := json.Unmarshal(data, &n); err == nil {
			r.notifications = append(r.notifications, n)
		}
	case interfaces.CertificateType:
		var c interfaces.Certificate
		if err := json.Unmarshal(data, &c); err == nil {
			r.certificates = append(r.certificates, c)
		}
	}
}

func (r *recorder) seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Seq)
	}
	return out
}

func runArchiver(t *testing.T, a *Archiver) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("archiver did not stop")
		}
	}
}

func TestArchiverFollowsEngine(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}

	backend := storage.NewMockStorageBackend("archive")
	backend.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Run(rec.onStore).Return(interfaces.ContentID{}, nil)

	// Mutations made before the archiver starts are archived too.
	_, err := e.AddSigner(owner, signerA)
	require.NoError(t, err)
	_, err = e.AddSigner(owner, signerB)
	require.NoError(t, err)
	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	a := NewArchiver(e, backend, slog.New(slog.NewTextHandler(io.Discard, nil)), WithNamespace("test"))
	stop := runArchiver(t, a)
	defer stop()

	id, _, err := e.CreateCertificate(signerA, []byte("cert-payload"))
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signerA, id)
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signerB, id)
	require.NoError(t, err)

	last := e.LastSeq()
	require.Eventually(t, func() bool { return a.LastArchived() == last }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, rec.seqs())

	rec.mu.Lock()
	require.Len(t, rec.certificates, 1)
	approved := rec.certificates[0]
	assert.Equal(t, id, approved.ID)
	assert.Equal(t, interfaces.StatusApproved, approved.Status)
	assert.Equal(t, []interfaces.Identity{signerA, signerB}, approved.Approvals)
	assert.Equal(t, interfaces.CertificateApproved, rec.notifications[len(rec.notifications)-1].Kind)
	rec.mu.Unlock()

	assert.Equal(t, float64(7), testutil.ToFloat64(a.archived.WithLabelValues("notification")))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.archived.WithLabelValues("certificate")))
}

func TestArchiverRetriesInOrder(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}
	unavailable := errors.New("backend offline")

	backend := storage.NewMockStorageBackend("flaky")
	backend.On("Store", mock.Anything, mock.Anything, interfaces.NotificationType).
		Return(interfaces.ContentID{}, unavailable).Twice()
	backend.On("Store", mock.Anything, mock.Anything, interfaces.NotificationType).
		Run(rec.onStore).Return(interfaces.ContentID{}, nil)

	_, err := e.AddSigner(owner, signerA)
	require.NoError(t, err)
	_, err = e.AddSigner(owner, signerB)
	require.NoError(t, err)

	a := NewArchiver(e, backend, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRetryInterval(10*time.Millisecond))
	stop := runArchiver(t, a)
	defer stop()

	require.Eventually(t, func() bool { return a.LastArchived() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, rec.seqs())
	assert.Equal(t, float64(2), testutil.ToFloat64(a.failures))
}

func TestArchiverResumesAfterStartSeq(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}

	backend := storage.NewMockStorageBackend("archive")
	backend.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Run(rec.onStore).Return(interfaces.ContentID{}, nil)

	for _, s := range []interfaces.Identity{signerA, signerB} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	_, err := e.ChangeOwner(owner, signerA)
	require.NoError(t, err)

	a := NewArchiver(e, backend, slog.New(slog.NewTextHandler(io.Discard, nil)), WithStartSeq(2))
	stop := runArchiver(t, a)
	defer stop()

	require.Eventually(t, func() bool { return a.LastArchived() == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{3}, rec.seqs())
}

func TestArchiverStopsWhileRetrying(t *testing.T) {
	e := newEngine(t)

	backend := storage.NewMockStorageBackend("down")
	backend.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Return(interfaces.ContentID{}, interfaces.ErrBackendUnavailable)

	_, err := e.AddSigner(owner, signerA)
	require.NoError(t, err)

	a := NewArchiver(e, backend, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRetryInterval(time.Hour))
	stop := runArchiver(t, a)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(a.failures) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, uint64(0), a.LastArchived())
}

func TestArchiverWritesRecordAsApproved(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}
	signerC := interfaces.Identity{0x0c}

	backend := storage.NewMockStorageBackend("archive")
	backend.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Run(rec.onStore).Return(interfaces.ContentID{}, nil)

	for _, s := range []interfaces.Identity{signerA, signerB, signerC} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	_, err := e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(signerA, []byte("cert-payload"))
	require.NoError(t, err)
	for _, s := range []interfaces.Identity{signerA, signerB, signerC} {
		_, _, err := e.SignCertificate(s, id)
		require.NoError(t, err)
	}

	// The archiver only starts once the post-approval signature is in the log.
	a := NewArchiver(e, backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	stop := runArchiver(t, a)
	defer stop()

	last := e.LastSeq()
	require.Eventually(t, func() bool { return a.LastArchived() == last }, 5*time.Second, 10*time.Millisecond)

	current, err := e.GetCertificate(id)
	require.NoError(t, err)
	require.Equal(t, 3, current.ApprovalCount())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.certificates, 1)
	assert.Equal(t, []interfaces.Identity{signerA, signerB}, rec.certificates[0].Approvals)
	assert.Equal(t, 2, rec.certificates[0].RequiredSignatures)
}
