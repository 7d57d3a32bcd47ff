package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/eligibility"
	"github.com/flightclaims/claims-engine/internal/platform/apierr"
)

// ClaimHandlers implements claim creation, retrieval, submission, and the
// staff-only lifecycle transitions.
type ClaimHandlers struct {
	store      *claims.Store
	groupStore *claims.GroupStore
	service    *claims.Service
}

func NewClaimHandlers(store *claims.Store, groupStore *claims.GroupStore, service *claims.Service) *ClaimHandlers {
	return &ClaimHandlers{store: store, groupStore: groupStore, service: service}
}

func claimErr(err error) *apierr.Error {
	switch {
	case errors.Is(err, claims.ErrNotFound), errors.Is(err, claims.ErrGroupNotFound):
		return apierr.NotFound("claim", "")
	case errors.Is(err, claims.ErrConcurrentModification):
		return apierr.ConcurrentModification()
	case errors.Is(err, claims.ErrConsentMissing):
		return apierr.ConsentMissing()
	case errors.Is(err, claims.ErrDuplicateClaim):
		return apierr.DuplicateClaim("", "")
	case errors.Is(err, claims.ErrCompensationNotSet):
		return apierr.Conflict("compensation_amount must be set and positive before a claim can be approved")
	case errors.Is(err, claims.ErrRejectionReasonRequired):
		return apierr.InvalidInput("reason", "a non-empty reason is required for this transition")
	default:
		if apiErr := apierr.As(err); apiErr != nil {
			return apiErr
		}
		return apierr.Internal("claim operation failed", err)
	}
}

type claimResponse struct {
	ID                   string  `json:"id"`
	CustomerID           string  `json:"customer_id"`
	ClaimGroupID         *string `json:"claim_group_id,omitempty"`
	Status               string  `json:"status"`
	Version              int     `json:"version"`
	Airline              string  `json:"airline"`
	FlightNumber         string  `json:"flight_number"`
	FlightDate           string  `json:"flight_date"`
	DepartureIATA        string  `json:"departure_iata"`
	ArrivalIATA          string  `json:"arrival_iata"`
	IncidentType         string  `json:"incident_type"`
	IncidentDescription  string  `json:"incident_description,omitempty"`
	DelayMinutes         *int    `json:"delay_minutes,omitempty"`
	EligibilityTier      *string `json:"eligibility_tier,omitempty"`
	CompensationAmount   *string `json:"compensation_amount,omitempty"`
	CompensationCurrency string  `json:"compensation_currency"`
	ExtraordinaryFlagged bool    `json:"extraordinary_flagged"`
	RejectionReason      *string `json:"rejection_reason,omitempty"`
	AssigneeID           *string `json:"assignee_id,omitempty"`
	ReviewerID           *string `json:"reviewer_id,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

func toClaimResponse(c claims.Claim) claimResponse {
	resp := claimResponse{
		ID:                   c.ID.String(),
		CustomerID:           c.CustomerID.String(),
		Status:               string(c.Status),
		Version:              c.Version,
		Airline:              c.Airline,
		FlightNumber:         c.FlightNumber,
		FlightDate:           c.FlightDate.Format("2006-01-02"),
		DepartureIATA:        c.DepartureIATA,
		ArrivalIATA:          c.ArrivalIATA,
		IncidentType:         c.IncidentType,
		IncidentDescription:  c.IncidentDescription,
		DelayMinutes:         c.DelayMinutes,
		EligibilityTier:      c.EligibilityTier,
		CompensationCurrency: c.CompensationCurrency,
		ExtraordinaryFlagged: c.ExtraordinaryFlagged,
		RejectionReason:      c.RejectionReason,
		CreatedAt:            c.CreatedAt.Format(timeLayout),
		UpdatedAt:            c.UpdatedAt.Format(timeLayout),
	}
	if c.ClaimGroupID != nil {
		s := c.ClaimGroupID.String()
		resp.ClaimGroupID = &s
	}
	if c.CompensationAmount != nil {
		s := c.CompensationAmount.String()
		resp.CompensationAmount = &s
	}
	if c.AssigneeID != nil {
		s := c.AssigneeID.String()
		resp.AssigneeID = &s
	}
	if c.ReviewerID != nil {
		s := c.ReviewerID.String()
		resp.ReviewerID = &s
	}
	return resp
}

// ownsOrStaff reports whether the actor may act on a claim belonging to
// customerID: its own claim, or any claim if the actor is agent/admin.
func ownsOrStaff(actor Actor, customerID uuid.UUID) bool {
	return actor.IsStaff() || actor.CustomerID == customerID
}

func parseClaimID(r *http.Request) (uuid.UUID, *apierr.Error) {
	id, err := uuid.Parse(chi.URLParam(r, "claimID"))
	if err != nil {
		return uuid.UUID{}, apierr.InvalidFormat("claimID", "uuid")
	}
	return id, nil
}

type createDraftRequest struct {
	ClaimGroupID        string `json:"claim_group_id,omitempty"`
	Airline             string `json:"airline"`
	FlightNumber        string `json:"flight_number"`
	FlightDate          string `json:"flight_date"`
	DepartureIATA       string `json:"departure_iata"`
	ArrivalIATA         string `json:"arrival_iata"`
	IncidentType        string `json:"incident_type"`
	IncidentDescription string `json:"incident_description,omitempty"`
	BookingReference    string `json:"booking_reference,omitempty"`
	TicketNumber        string `json:"ticket_number,omitempty"`
	TermsAccepted       bool   `json:"terms_accepted"`
	PrivacyAccepted     bool   `json:"privacy_accepted"`
}

// CreateDraft opens a new draft claim owned by the calling customer.
func (h *ClaimHandlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req createDraftRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	flightDate, err := time.Parse("2006-01-02", req.FlightDate)
	if err != nil {
		WriteError(w, r, apierr.InvalidFormat("flight_date", "YYYY-MM-DD"))
		return
	}
	if !req.TermsAccepted || !req.PrivacyAccepted {
		WriteError(w, r, apierr.InvalidInput("terms_accepted/privacy_accepted", "both must be accepted to open a claim"))
		return
	}

	var groupID *uuid.UUID
	if req.ClaimGroupID != "" {
		id, err := uuid.Parse(req.ClaimGroupID)
		if err != nil {
			WriteError(w, r, apierr.InvalidFormat("claim_group_id", "uuid"))
			return
		}
		groupID = &id
	}

	ip := clientIP(r)
	now := time.Now()
	created, err := h.store.Create(r.Context(), claims.Claim{
		CustomerID:          actor.CustomerID,
		ClaimGroupID:        groupID,
		Airline:             req.Airline,
		FlightNumber:        req.FlightNumber,
		FlightDate:          flightDate,
		DepartureIATA:       req.DepartureIATA,
		ArrivalIATA:         req.ArrivalIATA,
		IncidentType:        req.IncidentType,
		IncidentDescription: req.IncidentDescription,
		BookingReference:    req.BookingReference,
		TicketNumber:        req.TicketNumber,
		TermsAcceptedAt:     &now,
		TermsAcceptedIP:     ip,
		PrivacyAcceptedAt:   &now,
		PrivacyAcceptedIP:   ip,
	})
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("create claim", err))
		return
	}
	WriteJSON(w, r, http.StatusCreated, toClaimResponse(created))
}

// Get returns a single claim, enforcing that a customer can only see their
// own.
func (h *ClaimHandlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	claim, err := h.store.FindByID(r.Context(), claimID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	if !ownsOrStaff(actor, claim.CustomerID) {
		WriteError(w, r, apierr.Forbidden("you may not view this claim"))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(claim))
}

// ListMine returns every claim belonging to the calling customer.
func (h *ClaimHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	list, err := h.store.ListByCustomer(r.Context(), actor.CustomerID)
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("list claims", err))
		return
	}
	out := make([]claimResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toClaimResponse(c))
	}
	WriteJSON(w, r, http.StatusOK, out)
}

type submitRequest struct {
	ExpectedVersion    int        `json:"expected_version"`
	Region             string     `json:"region"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	ScheduledArrival   time.Time  `json:"scheduled_arrival"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	Status             string     `json:"status"`
	Incident           string     `json:"incident"`
	Extraordinary      *string    `json:"extraordinary,omitempty"`
}

// Submit runs the eligibility engine over the claimant-supplied flight
// facts and moves the claim from draft to submitted. A claim that belongs
// to a claim group refuses submission until that group's consent has been
// confirmed, and a duplicate (customer, flight_number, flight_date) claim
// already outside draft refuses submission as well.
func (h *ClaimHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}

	var req submitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	current, err := h.store.FindByID(r.Context(), claimID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	if !ownsOrStaff(actor, current.CustomerID) {
		WriteError(w, r, apierr.Forbidden("you may not submit this claim"))
		return
	}

	facts := eligibility.FlightFacts{
		DepartureIATA:      current.DepartureIATA,
		ArrivalIATA:        current.ArrivalIATA,
		ScheduledDeparture: req.ScheduledDeparture,
		ScheduledArrival:   req.ScheduledArrival,
		ActualDeparture:    req.ActualDeparture,
		ActualArrival:      req.ActualArrival,
		Status:             eligibility.FlightStatus(req.Status),
		Incident:           eligibility.Incident(req.Incident),
	}
	if req.Extraordinary != nil {
		tag := eligibility.ExtraordinaryTag(*req.Extraordinary)
		facts.Extraordinary = &tag
	}

	updated, err := h.service.Submit(r.Context(), claimID, req.ExpectedVersion, eligibility.Region(req.Region), facts)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(updated))
}

type transitionRequest struct {
	ExpectedVersion int    `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
}

func (h *ClaimHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(claimID uuid.UUID, version int) (claims.Claim, error)) {
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	var req transitionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	updated, err := apply(claimID, req.ExpectedVersion)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(updated))
}

// BeginReview moves a submitted claim into agent review. Staff-only.
func (h *ClaimHandlers) BeginReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	h.transition(w, r, func(id uuid.UUID, v int) (claims.Claim, error) {
		return h.service.BeginReview(r.Context(), id, v, actor.CustomerID)
	})
}

// Approve moves a claim under review to approved, provided the claim
// already carries a positive compensation_amount. Staff-only.
func (h *ClaimHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	h.transition(w, r, func(id uuid.UUID, v int) (claims.Claim, error) {
		return h.service.Approve(r.Context(), id, v, actor.CustomerID)
	})
}

// Reject moves a claim under review to rejected. Staff-only; requires a
// non-empty reason, which is persisted onto the claim.
func (h *ClaimHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	var req transitionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.Reject(r.Context(), claimID, req.ExpectedVersion, actor.CustomerID, req.Reason)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(updated))
}

// Reverse moves an approved claim back to rejected. Staff-only; requires
// a non-empty reason for the reversal.
func (h *ClaimHandlers) Reverse(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	var req transitionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.Reverse(r.Context(), claimID, req.ExpectedVersion, actor.CustomerID, req.Reason)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(updated))
}

// Reopen moves a rejected claim back to under_review. Staff-only;
// requires a non-empty reason for the reopening.
func (h *ClaimHandlers) Reopen(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	var req transitionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.Reopen(r.Context(), claimID, req.ExpectedVersion, actor.CustomerID, req.Reason)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toClaimResponse(updated))
}

// MarkPaid records an approved claim's payout. Staff-only.
func (h *ClaimHandlers) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	h.transition(w, r, func(id uuid.UUID, v int) (claims.Claim, error) {
		return h.service.MarkPaid(r.Context(), id, v, actor.CustomerID)
	})
}

// Close closes a paid claim. Staff-only.
func (h *ClaimHandlers) Close(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	h.transition(w, r, func(id uuid.UUID, v int) (claims.Claim, error) {
		return h.service.Close(r.Context(), id, v, actor.CustomerID)
	})
}

type createGroupRequest struct {
	Label        string `json:"label"`
	FlightNumber string `json:"flight_number"`
	FlightDate   string `json:"flight_date"`
}

type groupResponse struct {
	ID                 string  `json:"id"`
	CustomerID         string  `json:"customer_id"`
	Label              string  `json:"label"`
	FlightNumber       string  `json:"flight_number"`
	FlightDate         string  `json:"flight_date"`
	ConsentConfirmed   bool    `json:"consent_confirmed"`
	ConsentConfirmedAt *string `json:"consent_confirmed_at,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

func toGroupResponse(g claims.ClaimGroup) groupResponse {
	resp := groupResponse{
		ID:               g.ID.String(),
		CustomerID:       g.CustomerID.String(),
		Label:            g.Label,
		FlightNumber:     g.FlightNumber,
		FlightDate:       g.FlightDate.Format("2006-01-02"),
		ConsentConfirmed: g.ConsentConfirmed,
		CreatedAt:        g.CreatedAt.Format(timeLayout),
	}
	if g.ConsentConfirmedAt != nil {
		s := g.ConsentConfirmedAt.Format(timeLayout)
		resp.ConsentConfirmedAt = &s
	}
	return resp
}

// CreateGroup opens a multi-passenger claim group for the calling
// customer; individual claims reference it by id at CreateDraft time.
func (h *ClaimHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var req createGroupRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	flightDate, err := time.Parse("2006-01-02", req.FlightDate)
	if err != nil {
		WriteError(w, r, apierr.InvalidFormat("flight_date", "YYYY-MM-DD"))
		return
	}
	group, err := h.groupStore.Create(r.Context(), actor.CustomerID, req.Label, req.FlightNumber, flightDate)
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("create claim group", err))
		return
	}
	WriteJSON(w, r, http.StatusCreated, toGroupResponse(group))
}

// ConfirmGroupConsent marks a claim group's consent as affirmed, unblocking
// Submit for every draft that references it.
func (h *ClaimHandlers) ConfirmGroupConsent(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		WriteError(w, r, apierr.InvalidFormat("groupID", "uuid"))
		return
	}
	group, err := h.groupStore.FindByID(r.Context(), groupID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	if !ownsOrStaff(actor, group.CustomerID) {
		WriteError(w, r, apierr.Forbidden("you may not confirm consent for this claim group"))
		return
	}
	if err := h.groupStore.ConfirmConsent(r.Context(), groupID, clientIP(r)); err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	updated, err := h.groupStore.FindByID(r.Context(), groupID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	WriteJSON(w, r, http.StatusOK, toGroupResponse(updated))
}

type bulkApproveRequest struct {
	ClaimGroupID string `json:"claim_group_id"`
}

type bulkApproveResult struct {
	Approved []claimResponse `json:"approved"`
}

// BulkApprove approves every claim in a claim group atomically: either
// every member claim moves to approved, or none do. Admin-only, mounted
// on the gorilla/mux admin sub-router.
func (h *ClaimHandlers) BulkApprove(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var req bulkApproveRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	groupID, err := uuid.Parse(req.ClaimGroupID)
	if err != nil {
		WriteError(w, r, apierr.InvalidFormat("claim_group_id", "uuid"))
		return
	}

	approved, err := h.service.BulkApproveGroup(r.Context(), groupID, actor.CustomerID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	result := bulkApproveResult{Approved: make([]claimResponse, 0, len(approved))}
	for _, c := range approved {
		result.Approved = append(result.Approved, toClaimResponse(c))
	}
	WriteJSON(w, r, http.StatusOK, result)
}

type noteRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

type noteResponse struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	Internal  bool   `json:"internal"`
	CreatedAt string `json:"created_at"`
}

// AddNote records a note on a claim. Only staff may mark a note internal;
// a customer-authored note is always customer-visible.
func (h *ClaimHandlers) AddNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	claim, err := h.store.FindByID(r.Context(), claimID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	if !ownsOrStaff(actor, claim.CustomerID) {
		WriteError(w, r, apierr.Forbidden("you may not annotate this claim"))
		return
	}

	var req noteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	internal := req.Internal && actor.IsStaff()

	note, err := h.store.AddNote(r.Context(), claimID, actor.CustomerID, req.Body, internal)
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("add note", err))
		return
	}
	WriteJSON(w, r, http.StatusCreated, noteResponse{
		ID:        note.ID.String(),
		AuthorID:  note.AuthorID.String(),
		Body:      note.Body,
		Internal:  note.Internal,
		CreatedAt: note.CreatedAt.Format(timeLayout),
	})
}

// ListNotes returns a claim's notes, filtering out internal notes for a
// customer viewer.
func (h *ClaimHandlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	claimID, apiErr := parseClaimID(r)
	if apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	claim, err := h.store.FindByID(r.Context(), claimID)
	if err != nil {
		WriteError(w, r, claimErr(err))
		return
	}
	if !ownsOrStaff(actor, claim.CustomerID) {
		WriteError(w, r, apierr.Forbidden("you may not view this claim"))
		return
	}

	notes, err := h.store.ListNotes(r.Context(), claimID, actor.IsStaff())
	if err != nil {
		WriteError(w, r, apierr.DatabaseError("list notes", err))
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteResponse{
			ID:        n.ID.String(),
			AuthorID:  n.AuthorID.String(),
			Body:      n.Body,
			Internal:  n.Internal,
			CreatedAt: n.CreatedAt.Format(timeLayout),
		})
	}
	WriteJSON(w, r, http.StatusOK, out)
}
