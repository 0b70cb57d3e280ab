package interfaces

import "github.com/google/uuid"

// OwnerGovernance exposes the single administrator of the manager.
type OwnerGovernance interface {
	// Owner returns the current administrator.
	Owner() Identity

	// ChangeOwner hands administration to newOwner. Owner only.
	ChangeOwner(caller, newOwner Identity) (*Receipt, error)
}

// SignerSet is the signer registry as observed by a single read.
type SignerSet struct {
	Signers         []Identity
	MinimumSigners  int
	QuorumReachable bool
}

// SignerGovernance manages the signer set and the approval threshold.
type SignerGovernance interface {
	// AddSigner registers a signer. Owner only.
	AddSigner(caller, signer Identity) (*Receipt, error)

	// RemoveSigner unregisters a signer. Owner only.
	RemoveSigner(caller, signer Identity) (*Receipt, error)

	// SetMinimumSigners sets the approval threshold. Owner only, n >= 1.
	SetMinimumSigners(caller Identity, n int) (*Receipt, error)

	// SignersCount returns the number of registered signers.
	SignersCount() int

	// MinimumSigners returns the approval threshold.
	MinimumSigners() int

	// Signers returns the registered signers sorted by address.
	Signers() []Identity

	// IsSigner checks signer membership.
	IsSigner(identity Identity) bool

	// SignerSet returns the signers and the threshold read together.
	SignerSet() SignerSet
}

// CertificateIssuance creates and approves certificates.
type CertificateIssuance interface {
	// CreateCertificate stores a new pending certificate created by caller.
	CreateCertificate(caller Identity, payload []byte) (uuid.UUID, *Receipt, error)

	// SignCertificate records the caller's approval. Registered signers only.
	SignCertificate(caller Identity, id uuid.UUID) (Certificate, *Receipt, error)

	// GetCertificate returns a copy of the certificate.
	GetCertificate(id uuid.UUID) (Certificate, error)

	// GetUnsignedCertificates returns pending certificates in creation order.
	GetUnsignedCertificates() []Certificate
}

// NotificationSource gives after-the-fact access to the append-only notification log.
type NotificationSource interface {
	// NotificationsAfter returns all notifications with Seq > seq, oldest first.
	NotificationsAfter(seq uint64) []Notification

	// Changed returns a channel closed on the next append.
	Changed() <-chan struct{}
}

// CertificateManager is the caller-facing surface of the approval engine.
type CertificateManager interface {
	OwnerGovernance
	SignerGovernance
	CertificateIssuance
	NotificationSource
}
