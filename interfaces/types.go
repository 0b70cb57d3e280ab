package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Identity represents a caller: the owner, a signer or any other account.
// It is a 20-byte Ethereum-style address; the zero value is the empty identity.
type Identity [20]byte

// ZeroIdentity is the empty identity. It can never own the manager or sign.
var ZeroIdentity = Identity{}

// NewIdentityFromBytes creates an identity from a 20-byte slice.
func NewIdentityFromBytes(addr []byte) (Identity, error) {
	if len(addr) != 20 {
		return Identity{}, errors.New("invalid identity length: must be 20 bytes")
	}

	var res Identity
	copy(res[:], addr)
	return res, nil
}

// NewIdentityFromHex parses a hex address with or without the 0x prefix.
func NewIdentityFromHex(addr string) (Identity, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Identity{}, errors.New("invalid identity length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewIdentityFromBytes(addrBytes)
}

// IdentityFromAddress converts a go-ethereum address.
func IdentityFromAddress(addr common.Address) Identity {
	return Identity(addr)
}

// Address returns the identity as a go-ethereum address.
func (id Identity) Address() common.Address {
	return common.Address(id)
}

// String returns the EIP-55 checksummed hex representation.
func (id Identity) String() string {
	return id.Address().Hex()
}

// Bytes returns the raw 20-byte address.
func (id Identity) Bytes() []byte {
	return id[:]
}

// IsZero reports whether this is the empty identity.
func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

// MarshalText encodes the identity as a checksummed hex string.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex address.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := NewIdentityFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CertificateStatus is the lifecycle state of a certificate.
type CertificateStatus int

const (
	// StatusPending means the certificate has fewer approvals than required.
	StatusPending CertificateStatus = iota

	// StatusApproved means the quorum was reached. It is terminal.
	StatusApproved
)

// String returns the status name.
func (s CertificateStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name.
func (s CertificateStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *CertificateStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StatusPending
	case "approved":
		*s = StatusApproved
	default:
		return fmt.Errorf("unknown certificate status: %q", text)
	}
	return nil
}

// Certificate is a payload awaiting (or having reached) quorum approval.
//
// Approvals hold distinct signers in signing order. While pending,
// RequiredSignatures and Status are snapshotted at the last mutation of the
// record. Once approved, RequiredSignatures is the threshold the quorum was
// reached at; later signatures only extend Approvals.
type Certificate struct {
	ID                 uuid.UUID         `json:"id"`
	Payload            []byte            `json:"payload"`
	Creator            Identity          `json:"creator"`
	Approvals          []Identity        `json:"approvals"`
	RequiredSignatures int               `json:"required_signatures"`
	Status             CertificateStatus `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ApprovalCount returns the number of distinct signers that approved.
func (c Certificate) ApprovalCount() int {
	return len(c.Approvals)
}

// HasApproval reports whether the signer already approved this certificate.
func (c Certificate) HasApproval(signer Identity) bool {
	return slices.Contains(c.Approvals, signer)
}

// IsApproved reports whether the certificate reached its quorum.
func (c Certificate) IsApproved() bool {
	return c.Status == StatusApproved
}

// Clone returns a deep copy that shares no slices with the original.
func (c Certificate) Clone() Certificate {
	c.Payload = slices.Clone(c.Payload)
	c.Approvals = slices.Clone(c.Approvals)
	if c.Approvals == nil {
		c.Approvals = []Identity{}
	}
	return c
}
