package rp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ParleSec/LetsAuth/internal/core"
	"github.com/ParleSec/LetsAuth/internal/obs"
	"github.com/ParleSec/LetsAuth/pkg/models"
)

// SessionStarter is invoked after a successful verification to establish
// an authenticated session for the email. The session mechanism itself is
// the host application's concern.
type SessionStarter func(w http.ResponseWriter, r *http.Request, email string)

// Handlers exposes the RP's HTTP surface.
type Handlers struct {
	verifier *Verifier
	session  SessionStarter
}

// NewHandlers creates the RP handler set. session may be nil.
func NewHandlers(verifier *Verifier, session SessionStarter) *Handlers {
	return &Handlers{verifier: verifier, session: session}
}

// RegisterRoutes registers the RP's HTTP routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/authback", h.handleAuthback)
}

func (h *Handlers) handleAuthback(w http.ResponseWriter, r *http.Request) {
	var req models.AuthbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Assertion == "" {
		obs.ObserveVerification(string(ReasonMalformed))
		core.RespondError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	addr, err := h.verifier.Verify(r.Context(), req.Assertion)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			// All rejection reasons collapse into one user-visible
			// outcome; the distinction lives in logs and metrics.
			log.Printf("assertion rejected: %s", rejected.Reason)
			obs.ObserveVerification(string(rejected.Reason))
			core.RespondError(w, http.StatusUnauthorized, "authentication_failed", "")
			return
		}

		log.Printf("verification unavailable: %v", err)
		obs.ObserveVerification("unavailable")
		core.RespondError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "try again later")
		return
	}

	obs.ObserveVerification("ok")
	if h.session != nil {
		h.session(w, r, addr)
	}
	core.RespondJSON(w, http.StatusOK, models.AuthbackResponse{Email: addr})
}
