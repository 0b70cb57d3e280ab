/*
Package api defines the JSON wire format of the certificate manager HTTP API.

The server side lives in package httpserver and a typed client in
package api/clients. All routes are rooted at PathPrefix:

	GET    /api/v1/owner                      OwnerResponse
	POST   /api/v1/owner                      ChangeOwnerRequest -> ReceiptResponse (signed)
	GET    /api/v1/signers                    SignersResponse
	POST   /api/v1/signers                    AddSignerRequest -> ReceiptResponse (signed)
	GET    /api/v1/signers/count              CountResponse
	DELETE /api/v1/signers/{address}          ReceiptResponse (signed)
	GET    /api/v1/signers/minimum            MinimumSignersResponse
	PUT    /api/v1/signers/minimum            SetMinimumSignersRequest -> ReceiptResponse (signed)
	POST   /api/v1/certificates               CreateCertificateRequest -> CreateCertificateResponse (signed)
	GET    /api/v1/certificates/unsigned      CertificatesResponse
	GET    /api/v1/certificates/{id}          CertificateResponse
	POST   /api/v1/certificates/{id}/sign     CertificateResponse (signed)
	GET    /api/v1/notifications?after=N      NotificationsResponse

Signed routes require the caller authentication headers described in
package cryptoutils. Errors are returned as ErrorResponse with a status code
derived from the engine error: 400 invalid argument, 401 bad or missing
signature, 403 unauthorized, 404 not found, 409 already signed or already
exists.
*/
package api
