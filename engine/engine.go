package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/certstore"
	"github.com/ruteri/certificate-manager/governance"
	"github.com/ruteri/certificate-manager/interfaces"
)

// Config holds the parameters of a new Engine.
type Config struct {
	// Owner is the initial administrator. It must not be the zero identity.
	Owner interfaces.Identity

	// SignerPolicy decides whether re-adding a signer is a no-op or an error.
	SignerPolicy governance.SignerPolicy

	// Log receives one record per accepted or rejected mutation.
	Log *slog.Logger

	// StoreOptions customize the certificate store (id generator, clock).
	StoreOptions []certstore.Option
}

// Stats is a consistent snapshot of the engine counters.
type Stats struct {
	SignersCount         int
	MinimumSigners       int
	QuorumReachable      bool
	PendingCertificates  int
	ApprovedCertificates int
	LastSeq              uint64
}

// Engine is the approval engine. It owns the access control, the signer
// registry, the certificate store and the notification log, and serializes
// every operation on them behind a single RWMutex: mutations run to
// completion under the write lock, reads share the read lock.
type Engine struct {
	mu  sync.RWMutex
	log *slog.Logger

	access        *governance.AccessControl
	registry      *governance.SignerRegistry
	store         *certstore.Store
	notifications *notificationLog
}

var _ interfaces.CertificateManager = (*Engine)(nil)

// New creates an engine administered by cfg.Owner with no signers and a
// threshold of one.
func New(cfg *Config) (*Engine, error) {
	access, err := governance.NewAccessControl(cfg.Owner)
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		log:           log,
		access:        access,
		registry:      governance.NewSignerRegistry(access, cfg.SignerPolicy),
		store:         certstore.New(cfg.StoreOptions...),
		notifications: newNotificationLog(),
	}, nil
}

// commit appends the notifications of an accepted mutation to the log and
// wraps them in a receipt. Must be called with mu held for writing.
func (e *Engine) commit(ns ...interfaces.Notification) *interfaces.Receipt {
	return &interfaces.Receipt{Notifications: e.notifications.append(ns)}
}

func (e *Engine) rejected(op string, caller interfaces.Identity, err error) {
	e.log.Debug("Operation rejected", "op", op, "caller", caller.String(), "err", err)
}

// Owner returns the current administrator.
func (e *Engine) Owner() interfaces.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access.Owner()
}

// ChangeOwner hands administration to newOwner. Owner only.
func (e *Engine) ChangeOwner(caller, newOwner interfaces.Identity) (*interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.access.ChangeOwner(caller, newOwner)
	if err != nil {
		e.rejected("changeOwner", caller, err)
		return nil, err
	}

	e.log.Info("Owner changed", "previous", caller.String(), "owner", newOwner.String())
	return e.commit(n), nil
}

// AddSigner registers a signer. Owner only. Re-adding a signer follows the
// configured SignerPolicy; a no-op produces an empty receipt.
func (e *Engine) AddSigner(caller, signer interfaces.Identity) (*interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, changed, err := e.registry.AddSigner(caller, signer)
	if err != nil {
		e.rejected("addSigner", caller, err)
		return nil, err
	}
	if !changed {
		e.log.Debug("Signer already registered", "signer", signer.String())
		return e.commit(), nil
	}

	e.log.Info("Signer added", "signer", signer.String(), "signersCount", e.registry.SignersCount())
	return e.commit(n), nil
}

// RemoveSigner unregisters a signer. Owner only. Approvals the signer already
// recorded keep counting towards their certificates.
func (e *Engine) RemoveSigner(caller, signer interfaces.Identity) (*interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.registry.RemoveSigner(caller, signer)
	if err != nil {
		e.rejected("removeSigner", caller, err)
		return nil, err
	}

	e.log.Info("Signer removed", "signer", signer.String(), "signersCount", e.registry.SignersCount())
	if !e.registry.QuorumReachable() {
		e.log.Warn("Quorum no longer reachable",
			"signersCount", e.registry.SignersCount(),
			"minimumSigners", e.registry.MinimumSigners())
	}
	return e.commit(n), nil
}

// SetMinimumSigners sets the approval threshold. Owner only, n >= 1.
func (e *Engine) SetMinimumSigners(caller interfaces.Identity, n int) (*interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	notification, err := e.registry.SetMinimumSigners(caller, n)
	if err != nil {
		e.rejected("setMinimumSigners", caller, err)
		return nil, err
	}

	e.log.Info("Minimum signers changed", "minimumSigners", n)
	if !e.registry.QuorumReachable() {
		e.log.Warn("Quorum not reachable until more signers are added",
			"signersCount", e.registry.SignersCount(),
			"minimumSigners", n)
	}
	return e.commit(notification), nil
}

// SignersCount returns the number of registered signers.
func (e *Engine) SignersCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.SignersCount()
}

// MinimumSigners returns the approval threshold.
func (e *Engine) MinimumSigners() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.MinimumSigners()
}

// Signers returns the registered signers sorted by address.
func (e *Engine) Signers() []interfaces.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Signers()
}

// SignerSet returns the signers, the threshold and quorum reachability under
// one read lock.
func (e *Engine) SignerSet() interfaces.SignerSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Snapshot()
}

// IsSigner checks signer membership.
func (e *Engine) IsSigner(identity interfaces.Identity) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.IsSigner(identity)
}

// CreateCertificate stores a new pending certificate. Any identity except the
// zero identity may create one.
func (e *Engine) CreateCertificate(caller interfaces.Identity, payload []byte) (uuid.UUID, *interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller.IsZero() {
		err := fmt.Errorf("%w: creator must not be the zero identity", interfaces.ErrInvalidArgument)
		e.rejected("createCertificate", caller, err)
		return uuid.Nil, nil, err
	}

	cert, err := e.store.Put(caller, payload, e.registry.MinimumSigners())
	if err != nil {
		e.log.Error("Failed to store certificate", "creator", caller.String(), "err", err)
		return uuid.Nil, nil, err
	}

	e.log.Info("Certificate created", "id", cert.ID.String(), "creator", caller.String(), "size", len(payload))
	return cert.ID, e.commit(interfaces.NewCertificateCreated(cert.ID, caller, cert.Payload)), nil
}

// SignCertificate records the caller's approval of a certificate. Only
// registered signers may sign, each at most once per certificate. The receipt
// holds CertificateSigned and, when this signature completes the quorum,
// CertificateApproved.
func (e *Engine) SignCertificate(caller interfaces.Identity, id uuid.UUID) (interfaces.Certificate, *interfaces.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsSigner(caller) {
		err := fmt.Errorf("%w: %s is not a registered signer", interfaces.ErrUnauthorized, caller)
		e.rejected("signCertificate", caller, err)
		return interfaces.Certificate{}, nil, err
	}

	cert, approved, err := e.store.RecordApproval(id, caller, e.registry.MinimumSigners())
	if err != nil {
		e.rejected("signCertificate", caller, err)
		return interfaces.Certificate{}, nil, err
	}

	ns := []interfaces.Notification{interfaces.NewCertificateSigned(id, caller)}
	if approved {
		ns = append(ns, interfaces.NewCertificateApproved(cert))
		e.log.Info("Certificate approved", "id", id.String(),
			"approvals", cert.ApprovalCount(), "requiredSignatures", cert.RequiredSignatures)
	} else {
		e.log.Info("Certificate signed", "id", id.String(), "signer", caller.String(),
			"approvals", cert.ApprovalCount(), "requiredSignatures", cert.RequiredSignatures)
	}

	return cert, e.commit(ns...), nil
}

// GetCertificate returns a copy of the certificate.
func (e *Engine) GetCertificate(id uuid.UUID) (interfaces.Certificate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Get(id)
}

// GetUnsignedCertificates returns the pending certificates in creation order.
func (e *Engine) GetUnsignedCertificates() []interfaces.Certificate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.ListPending()
}

// NotificationsAfter returns the notifications with Seq > seq, oldest first.
func (e *Engine) NotificationsAfter(seq uint64) []interfaces.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notifications.after(seq)
}

// Changed returns a channel that is closed by the next accepted mutation that
// emits a notification. Take the channel before reading NotificationsAfter so
// that no append can be missed in between.
func (e *Engine) Changed() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notifications.changed
}

// LastSeq returns the sequence number of the newest notification, 0 if none.
func (e *Engine) LastSeq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notifications.lastSeq()
}

// Stats returns a consistent snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pending, approved := e.store.CountByStatus()
	return Stats{
		SignersCount:         e.registry.SignersCount(),
		MinimumSigners:       e.registry.MinimumSigners(),
		QuorumReachable:      e.registry.QuorumReachable(),
		PendingCertificates:  pending,
		ApprovedCertificates: approved,
		LastSeq:              e.notifications.lastSeq(),
	}
}
