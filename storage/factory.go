package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/certificate-manager/interfaces"
)

// StorageBackendFactory builds archive backends from location URIs:
//
//	file:///var/lib/certificate-manager/archive
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=https://minio:9000&path_style=true
//	vault://vault.example.com:8200/secret/certificate-manager?insecure=true
//	ipfs://127.0.0.1:5001/certificate-manager?timeout=30s
type StorageBackendFactory struct {
	log     *slog.Logger
	tlsAuth func() (tls.Certificate, error)
}

func NewStorageBackendFactory(log *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: log}
}

// WithTLSAuth returns a factory whose Vault backends authenticate with the
// client certificate returned by getCert.
func (sf *StorageBackendFactory) WithTLSAuth(getCert func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	return &StorageBackendFactory{log: sf.log, tlsAuth: getCert}
}

func (sf *StorageBackendFactory) StorageBackendFor(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch {
	case loc.IsFile():
		return sf.createFileBackend(loc)
	case loc.IsS3():
		return sf.createS3Backend(loc)
	case loc.IsVault():
		return sf.createVaultBackend(loc)
	case loc.IsIPFS():
		return sf.createIPFSBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend skips locations that cannot be turned into a backend and
// fails only if none can.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))
	for _, loc := range locations {
		backend, err := sf.StorageBackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend", "location", loc.String(), "err", err)
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no valid storage backends created", interfaces.ErrInvalidLocationURI)
	}
	return NewMultiStorageBackend(backends, sf.log), nil
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		// file://./relative/path
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, loc.String())
	}
	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	cfg := S3Config{
		Bucket:    loc.Host,
		Prefix:    loc.Path,
		Region:    loc.GetParam("region"),
		Endpoint:  loc.GetParam("endpoint"),
		PathStyle: loc.GetParamBool("path_style"),
	}
	if loc.Auth != "" {
		cfg.AccessKey, cfg.SecretKey, _ = strings.Cut(loc.Auth, ":")
	}
	return NewS3Backend(cfg, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host in %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	cfg := VaultConfig{
		Address:   scheme + "://" + loc.Host,
		MountPath: mount,
		DataPath:  dataPath,
	}

	if sf.tlsAuth != nil {
		cert, err := sf.tlsAuth()
		if err != nil {
			return nil, fmt.Errorf("failed to get TLS client certificate: %w", err)
		}
		cfg.ClientCert = &cert
	}

	return NewVaultBackend(cfg, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host := loc.Host
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS API host in %s", interfaces.ErrInvalidLocationURI, loc.String())
	}
	if !strings.Contains(host, ":") {
		host += ":5001"
	}

	timeout := 30 * time.Second
	if s := loc.GetParam("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, s)
		}
		timeout = d
	}

	root := loc.Path
	if strings.Trim(root, "/") == "" {
		root = "/certificate-manager"
	}
	return NewIPFSBackend(host, root, timeout, sf.log), nil
}
