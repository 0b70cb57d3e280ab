// Package archive copies the certificate manager's notification log to a
// storage backend.
//
// The Archiver waits on the engine's change signal, writes each notification
// as JSON under the notification namespace and, for CertificateApproved,
// also writes the certificate record carried by the notification, as it was
// when the quorum was reached. Writes happen strictly in
// sequence order: a failed write is retried after the retry interval before
// anything later is attempted.
package archive
