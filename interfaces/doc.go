// Package interfaces defines core interfaces and types for the certificate
// manager, separating interface definitions from implementations.
//
// # Governance Interfaces
//
// OwnerGovernance: The single administrator identity that gates every
// privileged operation.
//
// SignerGovernance: The signer set and the approval threshold (minimum signers).
//
// # Issuance Interfaces
//
// CertificateIssuance: Creation of certificates and collection of signer
// approvals until the quorum is reached.
//
// NotificationSource: Read access to the append-only notification log
// (OwnerChanged, SignerAdded, CertificateCreated, CertificateSigned,
// CertificateApproved, ...).
//
// # Storage Interfaces
//
// StorageBackend: Content-addressed storage used to archive approved
// certificates and notifications across backend types (file, S3, IPFS, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Core Types
//
//   - Identity: 20-byte Ethereum-style address identifying a caller
//   - Certificate: payload, creator, approvals, threshold snapshot and status
//   - Notification / Receipt: signals emitted by mutating operations
//   - ContentID: 32-byte SHA-256 hash for content addressing
//
// All engine failures wrap one of ErrUnauthorized, ErrNotFound, ErrAlreadySigned,
// ErrAlreadyExists or ErrInvalidArgument.
package interfaces
