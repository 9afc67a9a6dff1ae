package idp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ParleSec/LetsAuth/internal/core"
	"github.com/ParleSec/LetsAuth/internal/crypto"
	"github.com/ParleSec/LetsAuth/internal/obs"
	"github.com/ParleSec/LetsAuth/internal/store"
	"github.com/ParleSec/LetsAuth/pkg/models"
)

// Handlers exposes the IdP's HTTP surface.
type Handlers struct {
	svc    *Service
	keySet *crypto.KeySet
	debug  bool
}

// NewHandlers creates the IdP handler set. With debug set, issuance
// responses include the confirmation link directly (development only; in
// production the link travels exclusively out-of-band).
func NewHandlers(svc *Service, keySet *crypto.KeySet, debug bool) *Handlers {
	return &Handlers{svc: svc, keySet: keySet, debug: debug}
}

// RegisterRoutes registers the IdP's HTTP routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/auth", h.handleAuth)
	r.Get("/confirm", h.handleConfirm)
	r.Get(crypto.WellKnownJWKSPath, h.handleJWKS)
}

type authRequest struct {
	Email    string `json:"email"`
	Endpoint string `json:"endpoint"`
}

func (h *Handlers) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		obs.ObserveAuthRequest("invalid_request")
		core.RespondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	result, err := h.svc.Issue(r.Context(), req.Email, req.Endpoint)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}

	obs.ObserveAuthRequest("ok")
	resp := models.AuthResponse{
		Email: result.Email,
		Where: hostnameOf(result.Origin),
	}
	if h.debug {
		resp.Link = result.Link
	}
	core.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		obs.ObserveAuthRequest("invalid_input")
		core.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, store.ErrUnavailable):
		obs.ObserveAuthRequest("store_unavailable")
		core.RespondError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "try again later")
	default:
		log.Printf("issue failed: %v", err)
		obs.ObserveAuthRequest("error")
		core.RespondError(w, http.StatusInternalServerError, "server_error", "")
	}
}

func (h *Handlers) handleConfirm(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	resp, err := h.svc.Confirm(r.Context(), query.Get("email"), query.Get("origin"), query.Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			obs.ObserveConfirmation("invalid_input")
			core.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, ErrInvalidToken):
			obs.ObserveConfirmation("invalid_token")
			core.RespondError(w, http.StatusBadRequest, "invalid_token", "invalid credentials")
		case errors.Is(err, store.ErrUnavailable):
			obs.ObserveConfirmation("store_unavailable")
			core.RespondError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "try again later")
		default:
			log.Printf("confirm failed: %v", err)
			obs.ObserveConfirmation("error")
			core.RespondError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	obs.ObserveConfirmation("ok")
	core.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleJWKS(w http.ResponseWriter, r *http.Request) {
	core.RespondJSON(w, http.StatusOK, h.keySet.PublicJWKS())
}
