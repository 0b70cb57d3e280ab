package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/api"
	"github.com/ruteri/certificate-manager/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler translates HTTP requests into certificate manager operations.
// Signed routes expect the caller identity in the request context, see
// Authenticator.
type Handler struct {
	manager interfaces.CertificateManager
	log     *slog.Logger
}

func NewHandler(manager interfaces.CertificateManager, log *slog.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// statusForError maps the engine error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadySigned), errors.Is(err, interfaces.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Operation failed", "op", op, "err", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (interfaces.Identity, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated request")
	}
	return caller, ok
}

func (h *Handler) HandleGetOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.OwnerResponse{Owner: h.manager.Owner()})
}

func (h *Handler) HandleChangeOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.ChangeOwnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.manager.ChangeOwner(caller, req.NewOwner)
	if err != nil {
		h.writeEngineError(w, "changeOwner", err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReceiptResponse{Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleListSigners(w http.ResponseWriter, r *http.Request) {
	set := h.manager.SignerSet()
	writeJSON(w, http.StatusOK, api.SignersResponse{
		Signers:         set.Signers,
		Count:           len(set.Signers),
		MinimumSigners:  set.MinimumSigners,
		QuorumReachable: set.QuorumReachable,
	})
}

func (h *Handler) HandleSignersCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.CountResponse{Count: h.manager.SignersCount()})
}

func (h *Handler) HandleAddSigner(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.AddSignerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.manager.AddSigner(caller, req.Signer)
	if err != nil {
		h.writeEngineError(w, "addSigner", err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReceiptResponse{Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleRemoveSigner(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	signer, err := interfaces.NewIdentityFromHex(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signer address: "+err.Error())
		return
	}

	receipt, err := h.manager.RemoveSigner(caller, signer)
	if err != nil {
		h.writeEngineError(w, "removeSigner", err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReceiptResponse{Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleGetMinimumSigners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.MinimumSignersResponse{MinimumSigners: h.manager.MinimumSigners()})
}

func (h *Handler) HandleSetMinimumSigners(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.SetMinimumSignersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.manager.SetMinimumSigners(caller, req.MinimumSigners)
	if err != nil {
		h.writeEngineError(w, "setMinimumSigners", err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReceiptResponse{Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.CreateCertificateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, receipt, err := h.manager.CreateCertificate(caller, req.Payload)
	if err != nil {
		h.writeEngineError(w, "createCertificate", err)
		return
	}
	writeJSON(w, http.StatusCreated, api.CreateCertificateResponse{ID: id, Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid certificate id")
		return
	}

	cert, err := h.manager.GetCertificate(id)
	if err != nil {
		h.writeEngineError(w, "getCertificate", err)
		return
	}
	writeJSON(w, http.StatusOK, api.CertificateResponse{Certificate: cert})
}

func (h *Handler) HandleSignCertificate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid certificate id")
		return
	}

	cert, receipt, err := h.manager.SignCertificate(caller, id)
	if err != nil {
		h.writeEngineError(w, "signCertificate", err)
		return
	}
	writeJSON(w, http.StatusOK, api.CertificateResponse{Certificate: cert, Notifications: notificationsOf(receipt)})
}

func (h *Handler) HandleUnsignedCertificates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.CertificatesResponse{Certificates: h.manager.GetUnsignedCertificates()})
}

func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if s := r.URL.Query().Get("after"); s != "" {
		var err error
		if after, err = strconv.ParseUint(s, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
	}
	writeJSON(w, http.StatusOK, api.NotificationsResponse{Notifications: h.manager.NotificationsAfter(after)})
}

func notificationsOf(r *interfaces.Receipt) []interfaces.Notification {
	if r == nil || r.Notifications == nil {
		return []interfaces.Notification{}
	}
	return r.Notifications
}
