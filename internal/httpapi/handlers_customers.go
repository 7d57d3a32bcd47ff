package httpapi

import (
	"net/http"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
)

// CustomerHandlers implements self-service account operations.
type CustomerHandlers struct {
	service *auth.Service
}

func NewCustomerHandlers(service *auth.Service) *CustomerHandlers {
	return &CustomerHandlers{service: service}
}

// Anonymize scrubs the calling customer's PII and revokes every
// outstanding session, in response to a data-erasure request. A customer
// may only anonymize their own account; no route lets staff anonymize
// another customer's account.
func (h *CustomerHandlers) Anonymize(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		WriteError(w, r, apierr.Unauthenticated("missing bearer token"))
		return
	}
	if err := h.service.AnonymizeAccount(r.Context(), actor.CustomerID); err != nil {
		WriteError(w, r, apierr.Internal("failed to anonymize account", err))
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]string{"status": "account anonymized"})
}
