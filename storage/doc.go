// Package storage archives certificate manager content in pluggable backends.
//
// Content is addressed by the SHA-256 hash of its bytes and namespaced by
// content type: approved certificates under "certificates/" and the
// notification stream under "notifications/". Every backend uses the same
// "<type dir>/<hex content id>" object layout.
//
// Backends are selected by location URI:
//
//	file:///var/lib/certificate-manager/archive
//	s3://bucket/prefix?region=eu-west-1
//	s3://KEY:SECRET@bucket/prefix?endpoint=http://minio:9000&path_style=true
//	vault://vault.example.com:8200/secret/certificate-manager
//	ipfs://127.0.0.1:5001/certificate-manager?timeout=10s
//
// The Vault backend reads its token from VAULT_TOKEN and can authenticate
// with a TLS client certificate configured via StorageBackendFactory.WithTLSAuth.
//
// Several locations combine into a MultiStorageBackend, which writes to every
// available backend and reads from the first one holding the content:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
package storage
