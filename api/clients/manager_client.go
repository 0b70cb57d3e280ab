package clients

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/api"
	"github.com/ruteri/certificate-manager/cryptoutils"
	"github.com/ruteri/certificate-manager/interfaces"
)

// APIError is a non-2xx response. It unwraps to the engine error matching the
// status code, so callers can use errors.Is with the interfaces sentinels.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with code %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return interfaces.ErrInvalidArgument
	case http.StatusForbidden:
		return interfaces.ErrUnauthorized
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusConflict:
		if strings.HasPrefix(e.Message, interfaces.ErrAlreadySigned.Error()) {
			return interfaces.ErrAlreadySigned
		}
		return interfaces.ErrAlreadyExists
	default:
		return nil
	}
}

// ManagerClient calls the certificate manager HTTP API. Mutating calls are
// signed with the client's private key, whose address is the caller identity.
type ManagerClient struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewManagerClient creates a client for the API at baseURL
// (e.g. "http://localhost:8080"). privateKey may be nil for read-only use.
func NewManagerClient(baseURL string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *ManagerClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &ManagerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
		now: time.Now,
	}
}

// Identity returns the caller identity of the client key.
func (c *ManagerClient) Identity() interfaces.Identity {
	if c.privateKey == nil {
		return interfaces.ZeroIdentity
	}
	return cryptoutils.KeyIdentity(c.privateKey)
}

func (c *ManagerClient) do(method, path string, reqBody, result any, signed bool) error {
	var body []byte
	if reqBody != nil {
		var err error
		if body, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.baseURL+api.PathPrefix+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		if c.privateKey == nil {
			return errors.New("signed request requires a private key")
		}
		if err := cryptoutils.SignRequest(req, body, c.privateKey, c.now()); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *ManagerClient) Owner() (interfaces.Identity, error) {
	var resp api.OwnerResponse
	err := c.do(http.MethodGet, "/owner", nil, &resp, false)
	return resp.Owner, err
}

func (c *ManagerClient) ChangeOwner(newOwner interfaces.Identity) ([]interfaces.Notification, error) {
	var resp api.ReceiptResponse
	err := c.do(http.MethodPost, "/owner", api.ChangeOwnerRequest{NewOwner: newOwner}, &resp, true)
	return resp.Notifications, err
}

func (c *ManagerClient) Signers() (*api.SignersResponse, error) {
	var resp api.SignersResponse
	if err := c.do(http.MethodGet, "/signers", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ManagerClient) SignersCount() (int, error) {
	var resp api.CountResponse
	err := c.do(http.MethodGet, "/signers/count", nil, &resp, false)
	return resp.Count, err
}

func (c *ManagerClient) AddSigner(signer interfaces.Identity) ([]interfaces.Notification, error) {
	var resp api.ReceiptResponse
	err := c.do(http.MethodPost, "/signers", api.AddSignerRequest{Signer: signer}, &resp, true)
	return resp.Notifications, err
}

func (c *ManagerClient) RemoveSigner(signer interfaces.Identity) ([]interfaces.Notification, error) {
	var resp api.ReceiptResponse
	err := c.do(http.MethodDelete, "/signers/"+signer.String(), nil, &resp, true)
	return resp.Notifications, err
}

func (c *ManagerClient) MinimumSigners() (int, error) {
	var resp api.MinimumSignersResponse
	err := c.do(http.MethodGet, "/signers/minimum", nil, &resp, false)
	return resp.MinimumSigners, err
}

func (c *ManagerClient) SetMinimumSigners(n int) ([]interfaces.Notification, error) {
	var resp api.ReceiptResponse
	err := c.do(http.MethodPut, "/signers/minimum", api.SetMinimumSignersRequest{MinimumSigners: n}, &resp, true)
	return resp.Notifications, err
}

func (c *ManagerClient) CreateCertificate(payload []byte) (uuid.UUID, []interfaces.Notification, error) {
	var resp api.CreateCertificateResponse
	err := c.do(http.MethodPost, "/certificates", api.CreateCertificateRequest{Payload: payload}, &resp, true)
	return resp.ID, resp.Notifications, err
}

func (c *ManagerClient) SignCertificate(id uuid.UUID) (*interfaces.Certificate, []interfaces.Notification, error) {
	var resp api.CertificateResponse
	if err := c.do(http.MethodPost, "/certificates/"+id.String()+"/sign", nil, &resp, true); err != nil {
		return nil, nil, err
	}
	return &resp.Certificate, resp.Notifications, nil
}

func (c *ManagerClient) GetCertificate(id uuid.UUID) (*interfaces.Certificate, error) {
	var resp api.CertificateResponse
	if err := c.do(http.MethodGet, "/certificates/"+id.String(), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp.Certificate, nil
}

func (c *ManagerClient) UnsignedCertificates() ([]interfaces.Certificate, error) {
	var resp api.CertificatesResponse
	err := c.do(http.MethodGet, "/certificates/unsigned", nil, &resp, false)
	return resp.Certificates, err
}

func (c *ManagerClient) NotificationsAfter(seq uint64) ([]interfaces.Notification, error) {
	var resp api.NotificationsResponse
	q := url.Values{"after": []string{strconv.FormatUint(seq, 10)}}
	err := c.do(http.MethodGet, "/notifications?"+q.Encode(), nil, &resp, false)
	return resp.Notifications, err
}
