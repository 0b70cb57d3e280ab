package interfaces

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ContentID addresses archived content by the SHA-256 hash of its bytes.
type ContentID [32]byte

// ComputeID returns the content id of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// ParseContentID decodes a 64 character hex id, with or without 0x.
func ParseContentID(s string) (ContentID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid content id: %w", err)
	}
	if len(raw) != len(ContentID{}) {
		return ContentID{}, fmt.Errorf("invalid content id: got %d bytes, want 32", len(raw))
	}
	return ContentID(raw), nil
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ContentType selects the namespace archived content lives in.
type ContentType int

const (
	// CertificateType holds approved certificate records.
	CertificateType ContentType = iota
	// NotificationType holds the notification stream.
	NotificationType
)

func (ct ContentType) String() string {
	switch ct {
	case CertificateType:
		return "certificate"
	case NotificationType:
		return "notification"
	default:
		return "unknown"
	}
}

var supportedSchemes = []string{"file", "s3", "ipfs", "vault"}

// StorageBackendLocation is a parsed archive location URI of the form
// scheme://[auth@]host[:port][/path][?params].
type StorageBackendLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	Auth   string // userinfo, "user:password" when both are set
}

func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}
	if !slices.Contains(supportedSchemes, u.Scheme) {
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, u.Scheme)
	}

	loc := StorageBackendLocation{
		Raw:    uri,
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}
	if u.User != nil {
		loc.Auth = u.User.String()
	}
	return loc, nil
}

func (loc StorageBackendLocation) String() string { return loc.Raw }

func (loc StorageBackendLocation) IsFile() bool  { return loc.Scheme == "file" }
func (loc StorageBackendLocation) IsS3() bool    { return loc.Scheme == "s3" }
func (loc StorageBackendLocation) IsIPFS() bool  { return loc.Scheme == "ipfs" }
func (loc StorageBackendLocation) IsVault() bool { return loc.Scheme == "vault" }

func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool accepts "true", "1" and "yes".
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	switch loc.Query.Get(name) {
	case "true", "1", "yes":
		return true
	}
	return false
}

var (
	// ErrContentNotFound is returned when a backend does not hold the requested item.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a backend cannot be reached.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned for malformed or unsupported location URIs.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend archives content addressed by its hash.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store writes data and returns ComputeID(data). Storing the same bytes
	// twice is not an error.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	Available(ctx context.Context) bool

	// Name identifies the backend in logs.
	Name() string

	LocationURI() string
}

// StorageBackendFactory turns location URIs into backends.
type StorageBackendFactory interface {
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend combines several locations into one replicated backend.
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)

	// WithTLSAuth returns a factory whose backends present the given client certificate.
	WithTLSAuth(getCert func() (tls.Certificate, error)) StorageBackendFactory
}
