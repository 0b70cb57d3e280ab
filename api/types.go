package api

import (
	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/interfaces"
)

// Base path of the versioned API.
const PathPrefix = "/api/v1"

type ChangeOwnerRequest struct {
	NewOwner interfaces.Identity `json:"new_owner"`
}

type AddSignerRequest struct {
	Signer interfaces.Identity `json:"signer"`
}

type SetMinimumSignersRequest struct {
	MinimumSigners int `json:"minimum_signers"`
}

// CreateCertificateRequest carries the opaque payload, base64 encoded in JSON.
type CreateCertificateRequest struct {
	Payload []byte `json:"payload"`
}

type OwnerResponse struct {
	Owner interfaces.Identity `json:"owner"`
}

type SignersResponse struct {
	Signers         []interfaces.Identity `json:"signers"`
	Count           int                   `json:"count"`
	MinimumSigners  int                   `json:"minimum_signers"`
	QuorumReachable bool                  `json:"quorum_reachable"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type MinimumSignersResponse struct {
	MinimumSigners int `json:"minimum_signers"`
}

// ReceiptResponse is returned by mutations that produce no other value.
type ReceiptResponse struct {
	Notifications []interfaces.Notification `json:"notifications"`
}

type CreateCertificateResponse struct {
	ID            uuid.UUID                 `json:"id"`
	Notifications []interfaces.Notification `json:"notifications"`
}

type CertificateResponse struct {
	Certificate   interfaces.Certificate    `json:"certificate"`
	Notifications []interfaces.Notification `json:"notifications,omitempty"`
}

type CertificatesResponse struct {
	Certificates []interfaces.Certificate `json:"certificates"`
}

type NotificationsResponse struct {
	Notifications []interfaces.Notification `json:"notifications"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
