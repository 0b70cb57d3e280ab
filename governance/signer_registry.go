package governance

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ruteri/certificate-manager/interfaces"
)

// DefaultMinimumSigners is the threshold of a freshly created registry.
const DefaultMinimumSigners = 1

// SignerPolicy controls how the registry treats re-adding an existing signer.
type SignerPolicy int

const (
	// IdempotentSigners makes re-adding a member a successful no-op.
	IdempotentSigners SignerPolicy = iota

	// StrictSigners makes re-adding a member fail with ErrAlreadyExists.
	StrictSigners
)

// SignerRegistry owns the set of authorized signers and the approval
// threshold. Mutations are delegated to AccessControl for authorization.
// It is not safe for concurrent use; the engine serializes access.
type SignerRegistry struct {
	access         *AccessControl
	policy         SignerPolicy
	signers        map[interfaces.Identity]bool
	minimumSigners int
}

// NewSignerRegistry creates an empty registry with a threshold of one.
func NewSignerRegistry(access *AccessControl, policy SignerPolicy) *SignerRegistry {
	return &SignerRegistry{
		access:         access,
		policy:         policy,
		signers:        make(map[interfaces.Identity]bool),
		minimumSigners: DefaultMinimumSigners,
	}
}

// AddSigner registers a signer. Owner only.
//
// Under IdempotentSigners re-adding a member succeeds without a notification;
// changed reports whether membership actually changed.
func (r *SignerRegistry) AddSigner(caller, signer interfaces.Identity) (n interfaces.Notification, changed bool, err error) {
	if err := r.access.Authorize(caller); err != nil {
		return n, false, err
	}
	if signer.IsZero() {
		return n, false, fmt.Errorf("%w: signer must not be the zero identity", interfaces.ErrInvalidArgument)
	}

	if r.signers[signer] {
		if r.policy == StrictSigners {
			return n, false, fmt.Errorf("%w: signer %s", interfaces.ErrAlreadyExists, signer)
		}
		return n, false, nil
	}

	r.signers[signer] = true
	return interfaces.NewSignerAdded(signer), true, nil
}

// RemoveSigner unregisters a signer. Owner only. Approvals the signer already
// recorded on certificates remain counted.
func (r *SignerRegistry) RemoveSigner(caller, signer interfaces.Identity) (interfaces.Notification, error) {
	if err := r.access.Authorize(caller); err != nil {
		return interfaces.Notification{}, err
	}
	if !r.signers[signer] {
		return interfaces.Notification{}, fmt.Errorf("%w: signer %s", interfaces.ErrNotFound, signer)
	}

	delete(r.signers, signer)
	return interfaces.NewSignerRemoved(signer), nil
}

// SetMinimumSigners sets the approval threshold. Owner only, n must be at
// least one. A threshold above the current member count is accepted; approval
// stays unreachable until enough signers are registered.
func (r *SignerRegistry) SetMinimumSigners(caller interfaces.Identity, n int) (interfaces.Notification, error) {
	if err := r.access.Authorize(caller); err != nil {
		return interfaces.Notification{}, err
	}
	if n < 1 {
		return interfaces.Notification{}, fmt.Errorf("%w: minimum signers must be at least 1, got %d", interfaces.ErrInvalidArgument, n)
	}

	r.minimumSigners = n
	return interfaces.NewMinimumSignersChanged(n), nil
}

// MinimumSigners returns the approval threshold.
func (r *SignerRegistry) MinimumSigners() int {
	return r.minimumSigners
}

// SignersCount returns the number of registered signers.
func (r *SignerRegistry) SignersCount() int {
	return len(r.signers)
}

// IsSigner checks signer membership.
func (r *SignerRegistry) IsSigner(identity interfaces.Identity) bool {
	return r.signers[identity]
}

// Signers returns the registered signers sorted by address.
func (r *SignerRegistry) Signers() []interfaces.Identity {
	signers := make([]interfaces.Identity, 0, len(r.signers))
	for signer := range r.signers {
		signers = append(signers, signer)
	}
	slices.SortFunc(signers, func(a, b interfaces.Identity) int {
		return bytes.Compare(a[:], b[:])
	})
	return signers
}

// QuorumReachable reports whether the current members can satisfy the threshold.
func (r *SignerRegistry) QuorumReachable() bool {
	return len(r.signers) >= r.minimumSigners
}

// Snapshot returns the sorted signers together with the threshold.
func (r *SignerRegistry) Snapshot() interfaces.SignerSet {
	return interfaces.SignerSet{
		Signers:         r.Signers(),
		MinimumSigners:  r.minimumSigners,
		QuorumReachable: r.QuorumReachable(),
	}
}
