/*
Package clients provides a typed client for the certificate manager HTTP API.

ManagerClient signs every mutating request with its secp256k1 key, so the
server sees the key's address as the caller:

	key, _ := cryptoutils.ParsePrivateKeyHex(os.Getenv("MANAGER_PRIVKEY"))
	client := clients.NewManagerClient("http://localhost:8080", key)

	id, _, err := client.CreateCertificate([]byte("Test Certificate Data"))
	cert, notifications, err := client.SignCertificate(id)

Errors returned for non-2xx responses are *APIError values that unwrap to the
interfaces error sentinels, e.g. errors.Is(err, interfaces.ErrAlreadySigned).
*/
package clients
