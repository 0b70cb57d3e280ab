package cryptoutils

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/certificate-manager/interfaces"
)

// Headers carrying the caller authentication of a signed request.
const (
	HeaderCallerAddress   = "X-Caller-Address"
	HeaderCallerTimestamp = "X-Caller-Timestamp"
	HeaderCallerSignature = "X-Caller-Signature"
)

var (
	ErrMissingAuthHeaders = errors.New("missing caller authentication headers")
	ErrInvalidSignature   = errors.New("invalid caller signature")
	ErrAddressMismatch    = errors.New("signature does not match caller address")
)

// RequestDigest is the keccak256 hash a caller signs:
// method, path, unix timestamp in milliseconds and body joined by newlines.
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return crypto.Keccak256(buf.Bytes())
}

// SignRequest sets the caller authentication headers on req. The body must be
// the exact bytes sent with the request.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	timestamp := now.UnixMilli()
	signature, err := crypto.Sign(RequestDigest(req.Method, req.URL.Path, timestamp, body), key)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(HeaderCallerAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderCallerSignature, hexutil.Encode(signature))
	return nil
}

// SignedRequest holds the authentication material extracted from a request.
type SignedRequest struct {
	Address   interfaces.Identity
	Timestamp time.Time
	Signature []byte
}

// ParseSignedRequest reads the caller authentication headers.
func ParseSignedRequest(header http.Header) (*SignedRequest, error) {
	addrHex := header.Get(HeaderCallerAddress)
	tsStr := header.Get(HeaderCallerTimestamp)
	sigHex := header.Get(HeaderCallerSignature)
	if addrHex == "" || tsStr == "" || sigHex == "" {
		return nil, ErrMissingAuthHeaders
	}

	address, err := interfaces.NewIdentityFromHex(addrHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %w", ErrInvalidSignature, err)
	}

	signature, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature encoding: %w", ErrInvalidSignature, err)
	}
	if len(signature) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature must be %d bytes", ErrInvalidSignature, crypto.SignatureLength)
	}

	// Only the low-S form is accepted.
	r := new(big.Int).SetBytes(signature[:32])
	sv := new(big.Int).SetBytes(signature[32:64])
	if !crypto.ValidateSignatureValues(signature[64], r, sv, true) {
		return nil, fmt.Errorf("%w: signature values out of range or not in low-S form", ErrInvalidSignature)
	}

	return &SignedRequest{
		Address:   address,
		Timestamp: time.UnixMilli(ts),
		Signature: signature,
	}, nil
}

// Digest returns the RequestDigest of the request carrying s.
func (s *SignedRequest) Digest(method, path string, body []byte) []byte {
	return RequestDigest(method, path, s.Timestamp.UnixMilli(), body)
}

// RecoverCaller recovers the signer of a request digest and checks it against
// the claimed address.
func (s *SignedRequest) RecoverCaller(method, path string, body []byte) (interfaces.Identity, error) {
	digest := s.Digest(method, path, body)

	pubkey, err := crypto.SigToPub(digest, s.Signature)
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	recovered := interfaces.IdentityFromAddress(crypto.PubkeyToAddress(*pubkey))
	if recovered != s.Address {
		return interfaces.Identity{}, fmt.Errorf("%w: recovered %s, claimed %s", ErrAddressMismatch, recovered, s.Address)
	}
	return recovered, nil
}
