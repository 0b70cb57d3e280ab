package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/certificate-manager/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiStorageBackend_Available(t *testing.T) {
	tests := []struct {
		name      string
		available []bool
		expected  bool
	}{
		{"all available", []bool{true, true}, true},
		{"one available", []bool{false, true}, true},
		{"none available", []bool{false, false}, false},
		{"no backends", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.StorageBackend
			for i, available := range tt.available {
				m := NewMockStorageBackend(string(rune('a' + i)))
				m.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, m)
			}

			multi := NewMultiStorageBackend(backends, discardLogger())
			assert.Equal(t, tt.expected, multi.Available(context.Background()))
		})
	}
}

func TestMultiStorageBackend_FetchCertificate(t *testing.T) {
	record := []byte(`{"id":"8a4e5c1e-0b43-4a3b-9b8e-1c2d3e4f5a6b","status":"approved"}`)
	id := interfaces.ComputeID(record)
	missing := errors.New("object missing")

	t.Run("first backend serves", func(t *testing.T) {
		primary := NewMockStorageBackend("primary")
		primary.On("Available", mock.Anything).Return(true)
		primary.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(record, nil)
		replica := NewMockStorageBackend("replica")

		data, err := NewMultiStorageBackend([]interfaces.StorageBackend{primary, replica}, discardLogger()).
			Fetch(context.Background(), id, interfaces.CertificateType)
		require.NoError(t, err)
		assert.Equal(t, record, data)
		primary.AssertExpectations(t)
		replica.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to replica", func(t *testing.T) {
		primary := NewMockStorageBackend("primary")
		primary.On("Available", mock.Anything).Return(true)
		primary.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(nil, missing)
		replica := NewMockStorageBackend("replica")
		replica.On("Available", mock.Anything).Return(true)
		replica.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(record, nil)

		data, err := NewMultiStorageBackend([]interfaces.StorageBackend{primary, replica}, discardLogger()).
			Fetch(context.Background(), id, interfaces.CertificateType)
		require.NoError(t, err)
		assert.Equal(t, record, data)
	})

	t.Run("skips unavailable backend", func(t *testing.T) {
		down := NewMockStorageBackend("down")
		down.On("Available", mock.Anything).Return(false)
		up := NewMockStorageBackend("up")
		up.On("Available", mock.Anything).Return(true)
		up.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(record, nil)

		data, err := NewMultiStorageBackend([]interfaces.StorageBackend{down, up}, discardLogger()).
			Fetch(context.Background(), id, interfaces.CertificateType)
		require.NoError(t, err)
		assert.Equal(t, record, data)
		down.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("every backend fails", func(t *testing.T) {
		primary := NewMockStorageBackend("primary")
		primary.On("Available", mock.Anything).Return(true)
		primary.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(nil, interfaces.ErrContentNotFound)
		replica := NewMockStorageBackend("replica")
		replica.On("Available", mock.Anything).Return(true)
		replica.On("Fetch", mock.Anything, id, interfaces.CertificateType).Return(nil, missing)

		data, err := NewMultiStorageBackend([]interfaces.StorageBackend{primary, replica}, discardLogger()).
			Fetch(context.Background(), id, interfaces.CertificateType)
		require.Error(t, err)
		assert.Nil(t, data)
		assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
		assert.ErrorIs(t, err, missing)
	})

	t.Run("nothing available", func(t *testing.T) {
		down := NewMockStorageBackend("down")
		down.On("Available", mock.Anything).Return(false)

		_, err := NewMultiStorageBackend([]interfaces.StorageBackend{down}, discardLogger()).
			Fetch(context.Background(), id, interfaces.CertificateType)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	})
}

func TestMultiStorageBackend_StoreNotification(t *testing.T) {
	notification := []byte(`{"seq":1,"type":"certificate_created"}`)
	id := interfaces.ComputeID(notification)
	writeErr := errors.New("write failed")

	t.Run("replicates to every backend", func(t *testing.T) {
		a := NewMockStorageBackend("a")
		a.On("Available", mock.Anything).Return(true)
		a.On("Store", mock.Anything, notification, interfaces.NotificationType).Return(id, nil)
		b := NewMockStorageBackend("b")
		b.On("Available", mock.Anything).Return(true)
		b.On("Store", mock.Anything, notification, interfaces.NotificationType).Return(id, nil)

		got, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).
			Store(context.Background(), notification, interfaces.NotificationType)
		require.NoError(t, err)
		assert.Equal(t, id, got)
		a.AssertExpectations(t)
		b.AssertExpectations(t)
	})

	t.Run("partial failure still succeeds", func(t *testing.T) {
		a := NewMockStorageBackend("a")
		a.On("Available", mock.Anything).Return(true)
		a.On("Store", mock.Anything, notification, interfaces.NotificationType).Return(interfaces.ContentID{}, writeErr)
		b := NewMockStorageBackend("b")
		b.On("Available", mock.Anything).Return(true)
		b.On("Store", mock.Anything, notification, interfaces.NotificationType).Return(id, nil)

		got, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).
			Store(context.Background(), notification, interfaces.NotificationType)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("all writes fail", func(t *testing.T) {
		a := NewMockStorageBackend("a")
		a.On("Available", mock.Anything).Return(true)
		a.On("Store", mock.Anything, notification, interfaces.NotificationType).Return(interfaces.ContentID{}, writeErr)
		b := NewMockStorageBackend("b")
		b.On("Available", mock.Anything).Return(false)

		got, err := NewMultiStorageBackend([]interfaces.StorageBackend{a, b}, discardLogger()).
			Store(context.Background(), notification, interfaces.NotificationType)
		assert.ErrorIs(t, err, writeErr)
		assert.Equal(t, interfaces.ContentID{}, got)
		b.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("nothing available", func(t *testing.T) {
		a := NewMockStorageBackend("a")
		a.On("Available", mock.Anything).Return(false)

		_, err := NewMultiStorageBackend([]interfaces.StorageBackend{a}, discardLogger()).
			Store(context.Background(), notification, interfaces.NotificationType)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	})
}

func TestMultiStorageBackend_LocationURI(t *testing.T) {
	multi := NewMultiStorageBackend([]interfaces.StorageBackend{
		NewMockStorageBackend("a"),
		NewMockStorageBackend("b"),
	}, discardLogger())
	assert.Equal(t, "multi:[mock://a,mock://b]", multi.LocationURI())
	assert.Equal(t, "multi-storage", multi.Name())
}
