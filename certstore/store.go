// Package certstore holds certificate records keyed by store-generated UUIDs.
package certstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/interfaces"
)

// maxIDAttempts bounds regeneration on a UUID collision.
const maxIDAttempts = 8

// Store owns all certificate records. Records are kept in creation order and
// handed out as deep copies. Store is not safe for concurrent use; the engine
// serializes access.
type Store struct {
	records map[uuid.UUID]*interfaces.Certificate
	order   []uuid.UUID
	pending int

	newID func() (uuid.UUID, error)
	now   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(s *Store) { s.newID = gen }
}

// WithClock replaces the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store generating random (v4) identifiers.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[uuid.UUID]*interfaces.Certificate),
		newID:   uuid.NewRandom,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a new pending certificate with no approvals and returns it.
// The identifier is generated here and never supplied by the caller.
func (s *Store) Put(creator interfaces.Identity, payload []byte, threshold int) (interfaces.Certificate, error) {
	id, err := s.freshID()
	if err != nil {
		return interfaces.Certificate{}, err
	}

	cert := &interfaces.Certificate{
		ID:                 id,
		Payload:            append([]byte(nil), payload...),
		Creator:            creator,
		Approvals:          []interfaces.Identity{},
		RequiredSignatures: threshold,
		Status:             interfaces.StatusPending,
		CreatedAt:          s.now().UTC(),
	}

	s.records[id] = cert
	s.order = append(s.order, id)
	s.pending++
	return cert.Clone(), nil
}

func (s *Store) freshID() (uuid.UUID, error) {
	for range maxIDAttempts {
		id, err := s.newID()
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to generate certificate id: %w", err)
		}
		if _, exists := s.records[id]; !exists && id != uuid.Nil {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("failed to generate unique certificate id after %d attempts", maxIDAttempts)
}

// Get returns a copy of the certificate.
func (s *Store) Get(id uuid.UUID) (interfaces.Certificate, error) {
	cert, ok := s.records[id]
	if !ok {
		return interfaces.Certificate{}, fmt.Errorf("%w: certificate %s", interfaces.ErrNotFound, id)
	}
	return cert.Clone(), nil
}

// RecordApproval appends signer to the approvals of the certificate and, while
// it is pending, recomputes its status against threshold. The record is only mutated when
// no error is returned. approved reports whether this call moved the record
// from pending to approved.
func (s *Store) RecordApproval(id uuid.UUID, signer interfaces.Identity, threshold int) (cert interfaces.Certificate, approved bool, err error) {
	record, ok := s.records[id]
	if !ok {
		return cert, false, fmt.Errorf("%w: certificate %s", interfaces.ErrNotFound, id)
	}
	if record.HasApproval(signer) {
		return cert, false, fmt.Errorf("%w: %s already approved certificate %s", interfaces.ErrAlreadySigned, signer, id)
	}

	record.Approvals = append(record.Approvals, signer)

	// Approved is terminal and keeps the threshold it was approved at.
	if record.Status == interfaces.StatusPending {
		record.RequiredSignatures = threshold
		if len(record.Approvals) >= threshold {
			record.Status = interfaces.StatusApproved
			s.pending--
			approved = true
		}
	}

	return record.Clone(), approved, nil
}

// ListPending returns the pending certificates in creation order. Every call
// returns a fresh slice of copies.
func (s *Store) ListPending() []interfaces.Certificate {
	pending := make([]interfaces.Certificate, 0, s.pending)
	for _, id := range s.order {
		if cert := s.records[id]; cert.Status == interfaces.StatusPending {
			pending = append(pending, cert.Clone())
		}
	}
	return pending
}

// Len returns the number of stored certificates.
func (s *Store) Len() int {
	return len(s.order)
}

// CountByStatus returns how many certificates are pending and approved.
func (s *Store) CountByStatus() (pending, approved int) {
	return s.pending, len(s.order) - s.pending
}
