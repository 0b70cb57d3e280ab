package interfaces

import (
	"fmt"

	"github.com/google/uuid"
)

// NotificationKind identifies the operation a notification was emitted for.
type NotificationKind int

const (
	OwnerChanged NotificationKind = iota + 1
	SignerAdded
	SignerRemoved
	MinimumSignersChanged
	CertificateCreated
	CertificateSigned
	CertificateApproved
)

var notificationKindNames = map[NotificationKind]string{
	OwnerChanged:          "OwnerChanged",
	SignerAdded:           "SignerAdded",
	SignerRemoved:         "SignerRemoved",
	MinimumSignersChanged: "MinimumSignersChanged",
	CertificateCreated:    "CertificateCreated",
	CertificateSigned:     "CertificateSigned",
	CertificateApproved:   "CertificateApproved",
}

// String returns the notification name.
func (k NotificationKind) String() string {
	if name, ok := notificationKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText encodes the kind as its name.
func (k NotificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *NotificationKind) UnmarshalText(text []byte) error {
	for kind, name := range notificationKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown notification kind: %q", text)
}

// Notification is an append-only signal produced by a state-mutating operation.
// Only the fields relevant to Kind are set:
//
//	OwnerChanged:          PreviousOwner, NewOwner
//	SignerAdded:           Signer
//	SignerRemoved:         Signer
//	MinimumSignersChanged: MinimumSigners
//	CertificateCreated:    CertificateID, Creator, Payload
//	CertificateSigned:     CertificateID, Signer
//	CertificateApproved:   CertificateID, Certificate
//
// Seq is assigned by the engine's notification log and is strictly increasing.
type Notification struct {
	Seq            uint64           `json:"seq"`
	Kind           NotificationKind `json:"kind"`
	PreviousOwner  *Identity        `json:"previous_owner,omitempty"`
	NewOwner       *Identity        `json:"new_owner,omitempty"`
	Signer         *Identity        `json:"signer,omitempty"`
	Creator        *Identity        `json:"creator,omitempty"`
	CertificateID  *uuid.UUID       `json:"certificate_id,omitempty"`
	Payload        []byte           `json:"payload,omitempty"`
	MinimumSigners int              `json:"minimum_signers,omitempty"`
	Certificate    *Certificate     `json:"certificate,omitempty"`
}

func NewOwnerChanged(previous, next Identity) Notification {
	return Notification{Kind: OwnerChanged, PreviousOwner: &previous, NewOwner: &next}
}

func NewSignerAdded(signer Identity) Notification {
	return Notification{Kind: SignerAdded, Signer: &signer}
}

func NewSignerRemoved(signer Identity) Notification {
	return Notification{Kind: SignerRemoved, Signer: &signer}
}

func NewMinimumSignersChanged(n int) Notification {
	return Notification{Kind: MinimumSignersChanged, MinimumSigners: n}
}

func NewCertificateCreated(id uuid.UUID, creator Identity, payload []byte) Notification {
	return Notification{Kind: CertificateCreated, CertificateID: &id, Creator: &creator, Payload: payload}
}

func NewCertificateSigned(id uuid.UUID, signer Identity) Notification {
	return Notification{Kind: CertificateSigned, CertificateID: &id, Signer: &signer}
}

// NewCertificateApproved carries a copy of the record as it was when the
// quorum was reached.
func NewCertificateApproved(cert Certificate) Notification {
	id := cert.ID
	approved := cert.Clone()
	return Notification{Kind: CertificateApproved, CertificateID: &id, Certificate: &approved}
}

// Receipt lists the notifications produced by one accepted mutating call, in
// emission order. A failed call produces no receipt.
type Receipt struct {
	Notifications []Notification `json:"notifications"`
}

// Has reports whether the receipt contains a notification of the given kind.
func (r *Receipt) Has(kind NotificationKind) bool {
	if r == nil {
		return false
	}
	for _, n := range r.Notifications {
		if n.Kind == kind {
			return true
		}
	}
	return false
}
