package claims

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Claim is one passenger's compensation claim.
type Claim struct {
	ID                   uuid.UUID
	CustomerID           uuid.UUID
	ClaimGroupID         *uuid.UUID
	Status               Status
	Version              int
	Airline              string
	FlightNumber         string
	FlightDate           time.Time
	DepartureIATA        string
	ArrivalIATA          string
	IncidentType         string
	IncidentDescription  string
	ScheduledDeparture   *time.Time
	ActualDeparture      *time.Time
	ScheduledArrival     *time.Time
	ActualArrival        *time.Time
	DelayMinutes         *int
	DistanceKM           *decimal.Decimal
	EligibilityTier      *string
	CompensationAmount   *decimal.Decimal
	CompensationCurrency string // ISO 4217
	ExtraordinaryFlagged bool
	RejectionReason      *string
	AssigneeID           *uuid.UUID
	ReviewerID           *uuid.UUID
	BookingReference     string // plaintext in memory; persisted sealed
	TicketNumber         string // plaintext in memory; persisted sealed
	ReminderStage        int
	TermsAcceptedAt      *time.Time
	TermsAcceptedIP      string
	PrivacyAcceptedAt    *time.Time
	PrivacyAcceptedIP    string
	SubmittedAt          *time.Time
	DecidedAt            *time.Time
	PaidAt               *time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// claimRow is the sqlx scan target matching the claims table's columns.
// BookingReference/TicketNumber are stored as sealed ciphertext and must
// be opened against a Sealer scoped to the claim's own ID before
// reaching a Claim; the row never carries the plaintext.
type claimRow struct {
	ID                      uuid.UUID           `db:"id"`
	CustomerID              uuid.UUID           `db:"customer_id"`
	ClaimGroupID            *uuid.UUID          `db:"claim_group_id"`
	Status                  string              `db:"status"`
	Version                 int                 `db:"version"`
	Airline                 string              `db:"airline"`
	FlightNumber            string              `db:"flight_number"`
	FlightDate              time.Time           `db:"flight_date"`
	DepartureIATA           string              `db:"departure_iata"`
	ArrivalIATA             string              `db:"arrival_iata"`
	IncidentType            string              `db:"incident_type"`
	IncidentDescription     string              `db:"incident_description"`
	ScheduledDeparture      *time.Time          `db:"scheduled_departure"`
	ActualDeparture         *time.Time          `db:"actual_departure"`
	ScheduledArrival        *time.Time          `db:"scheduled_arrival"`
	ActualArrival           *time.Time          `db:"actual_arrival"`
	DelayMinutes            *int                `db:"delay_minutes"`
	DistanceKM              decimal.NullDecimal `db:"distance_km"`
	EligibilityTier         *string             `db:"eligibility_tier"`
	CompensationAmount      decimal.NullDecimal `db:"compensation_amount"`
	CompensationCurrency    string              `db:"compensation_currency"`
	ExtraordinaryFlagged    bool                `db:"extraordinary_flagged"`
	RejectionReason         *string             `db:"rejection_reason"`
	AssigneeID              *uuid.UUID          `db:"assignee_id"`
	ReviewerID              *uuid.UUID          `db:"reviewer_id"`
	BookingReferenceSealed  string              `db:"booking_reference_ciphertext"`
	TicketNumberSealed      string              `db:"ticket_number_ciphertext"`
	ReminderStage           int                 `db:"reminder_stage"`
	TermsAcceptedAt         *time.Time          `db:"terms_accepted_at"`
	TermsAcceptedIP         string              `db:"terms_accepted_ip"`
	PrivacyAcceptedAt       *time.Time          `db:"privacy_accepted_at"`
	PrivacyAcceptedIP       string              `db:"privacy_accepted_ip"`
	SubmittedAt             *time.Time          `db:"submitted_at"`
	DecidedAt               *time.Time          `db:"decided_at"`
	PaidAt                  *time.Time          `db:"paid_at"`
	ClosedAt                *time.Time          `db:"closed_at"`
	CreatedAt               time.Time           `db:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at"`
}

// toClaim converts a scanned row into a Claim, leaving BookingReference
// and TicketNumber blank: decrypting those requires a Sealer scoped to
// this claim's ID, so the Store opens them after this call.
func (r claimRow) toClaim() Claim {
	c := Claim{
		ID:                   r.ID,
		CustomerID:           r.CustomerID,
		ClaimGroupID:         r.ClaimGroupID,
		Status:               Status(r.Status),
		Version:              r.Version,
		Airline:              r.Airline,
		FlightNumber:         r.FlightNumber,
		FlightDate:           r.FlightDate,
		DepartureIATA:        r.DepartureIATA,
		ArrivalIATA:          r.ArrivalIATA,
		IncidentType:         r.IncidentType,
		IncidentDescription:  r.IncidentDescription,
		ScheduledDeparture:   r.ScheduledDeparture,
		ActualDeparture:      r.ActualDeparture,
		ScheduledArrival:     r.ScheduledArrival,
		ActualArrival:        r.ActualArrival,
		DelayMinutes:         r.DelayMinutes,
		EligibilityTier:      r.EligibilityTier,
		CompensationCurrency: r.CompensationCurrency,
		ExtraordinaryFlagged: r.ExtraordinaryFlagged,
		RejectionReason:      r.RejectionReason,
		AssigneeID:           r.AssigneeID,
		ReviewerID:           r.ReviewerID,
		ReminderStage:        r.ReminderStage,
		TermsAcceptedAt:      r.TermsAcceptedAt,
		TermsAcceptedIP:      r.TermsAcceptedIP,
		PrivacyAcceptedAt:    r.PrivacyAcceptedAt,
		PrivacyAcceptedIP:    r.PrivacyAcceptedIP,
		SubmittedAt:          r.SubmittedAt,
		DecidedAt:            r.DecidedAt,
		PaidAt:               r.PaidAt,
		ClosedAt:             r.ClosedAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.DistanceKM.Valid {
		d := r.DistanceKM.Decimal
		c.DistanceKM = &d
	}
	if r.CompensationAmount.Valid {
		a := r.CompensationAmount.Decimal
		c.CompensationAmount = &a
	}
	return c
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
