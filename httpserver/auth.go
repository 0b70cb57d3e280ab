package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/patrickmn/go-cache"
	"github.com/ruteri/certificate-manager/cryptoutils"
	"github.com/ruteri/certificate-manager/interfaces"
)

// DefaultSignatureMaxAge bounds the clock skew accepted on signed requests.
const DefaultSignatureMaxAge = 5 * time.Minute

var (
	ErrStaleSignature  = errors.New("request timestamp outside accepted window")
	ErrReplayedRequest = errors.New("signed request already used")
)

type callerCtxKey struct{}

// CallerFromContext returns the identity authenticated by Authenticator.
func CallerFromContext(ctx context.Context) (interfaces.Identity, bool) {
	caller, ok := ctx.Value(callerCtxKey{}).(interfaces.Identity)
	return caller, ok
}

// Authenticator verifies signed requests and resolves the caller identity.
// Each signed request is accepted once within its validity window, keyed on
// the caller and the signed digest rather than the signature encoding.
type Authenticator struct {
	maxAge time.Duration
	seen   *cache.Cache
	now    func() time.Time
	log    *slog.Logger
}

func NewAuthenticator(maxAge time.Duration, log *slog.Logger) *Authenticator {
	if maxAge <= 0 {
		maxAge = DefaultSignatureMaxAge
	}
	return &Authenticator{
		maxAge: maxAge,
		seen:   cache.New(2*maxAge, maxAge),
		now:    time.Now,
		log:    log,
	}
}

// Authenticate checks the signature of r over body and returns the caller.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (interfaces.Identity, error) {
	signed, err := cryptoutils.ParseSignedRequest(r.Header)
	if err != nil {
		return interfaces.Identity{}, err
	}

	age := a.now().Sub(signed.Timestamp)
	if age > a.maxAge || age < -a.maxAge {
		return interfaces.Identity{}, fmt.Errorf("%w: %s", ErrStaleSignature, age.Round(time.Second))
	}

	caller, err := signed.RecoverCaller(r.Method, r.URL.Path, body)
	if err != nil {
		return interfaces.Identity{}, err
	}

	replayKey := caller.String() + ":" + hexutil.Encode(signed.Digest(r.Method, r.URL.Path, body))
	if err := a.seen.Add(replayKey, struct{}{}, cache.DefaultExpiration); err != nil {
		return interfaces.Identity{}, ErrReplayedRequest
	}
	return caller, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the caller
// in the request context. The body is buffered and restored for the handler.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > maxBodySize {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller, err := a.Authenticate(r, body)
		if err != nil {
			a.log.Warn("Authentication failed", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		a.log.Debug("Caller authenticated", "caller", caller.String(), "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerCtxKey{}, caller)))
	})
}
