package eligibility

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestEvaluate_LongHaulDelayFullCompensation(t *testing.T) {
	sched := mustParse(t, "2026-03-10T18:30:00Z")
	actual := mustParse(t, "2026-03-10T21:30:00Z") // 180 min delay at gate

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   sched,
		ActualArrival:      &actual,
		Status:             StatusArrived,
		Incident:           IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	assert.True(t, result.HasAmount)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(600)), "got %s", result.Amount)
	assert.Equal(t, "EUR", result.Currency)
	assert.False(t, result.ManualReviewRequired)
	assert.Greater(t, result.FlightDistanceKM, 3500.0)
	assert.InDelta(t, 3.0, result.DelayHoursAtGate, 0.01)
}

func TestEvaluate_LongHaulPartialCompensation(t *testing.T) {
	sched := mustParse(t, "2026-03-10T18:30:00Z")
	actual := mustParse(t, "2026-03-10T22:00:00Z") // 3.5h delay

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   sched,
		ActualArrival:      &actual,
		Status:             StatusArrived,
		Incident:           IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(300)), "got %s", result.Amount)
}

func TestEvaluate_ShortHaulBelowThresholdIneligible(t *testing.T) {
	sched := mustParse(t, "2026-03-10T12:00:00Z")
	actual := mustParse(t, "2026-03-10T14:00:00Z") // 2h delay

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "MUC",
		ScheduledDeparture: mustParse(t, "2026-03-10T11:00:00Z"),
		ScheduledArrival:   sched,
		ActualArrival:      &actual,
		Status:             StatusArrived,
		Incident:           IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.False(t, result.HasAmount)
	assert.Contains(t, result.Reasons, "delay_under_threshold")
}

func TestEvaluate_SameAirportInvalidRoute(t *testing.T) {
	facts := FlightFacts{
		DepartureIATA: "FRA",
		ArrivalIATA:   "FRA",
		Incident:      IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reasons, "invalid_route")
}

func TestEvaluate_MissingScheduledArrivalInsufficientData(t *testing.T) {
	facts := FlightFacts{
		DepartureIATA: "FRA",
		ArrivalIATA:   "IAD",
		Incident:      IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reasons, "insufficient_data")
}

func TestEvaluate_EarlyArrivalClampsToZeroAndIneligible(t *testing.T) {
	sched := mustParse(t, "2026-03-10T18:30:00Z")
	actual := mustParse(t, "2026-03-10T18:10:00Z") // early

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   sched,
		ActualArrival:      &actual,
		Status:             StatusArrived,
		Incident:           IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.DelayHoursAtGate)
	assert.False(t, result.Eligible)
}

func TestEvaluate_CancellationAlwaysEligibleSubjectToDistance(t *testing.T) {
	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "MUC",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   mustParse(t, "2026-03-10T11:00:00Z"),
		Status:             StatusCancelled,
		Incident:           IncidentCancellation,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(250)), "got %s", result.Amount)
}

func TestEvaluate_BaggageDelayAlwaysIneligible(t *testing.T) {
	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   mustParse(t, "2026-03-10T18:30:00Z"),
		Status:             StatusArrived,
		Incident:           IncidentBaggageDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reasons, "baggage_delay_ineligible")
}

func TestEvaluate_ExtraordinaryCircumstancesFlaggedForManualReview(t *testing.T) {
	sched := mustParse(t, "2026-03-10T18:30:00Z")
	actual := mustParse(t, "2026-03-10T22:30:00Z")
	weather := ExtraordinaryWeather

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: mustParse(t, "2026-03-10T10:00:00Z"),
		ScheduledArrival:   sched,
		ActualArrival:      &actual,
		Status:             StatusDelayed,
		Incident:           IncidentDelay,
		Extraordinary:      &weather,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.True(t, result.ManualReviewRequired)
	require.NotNil(t, result.ExtraordinaryCircumstances)
	assert.Equal(t, ExtraordinaryWeather, *result.ExtraordinaryCircumstances)
	// amount is still computed even though the claim needs manual review
	assert.True(t, result.Eligible)
	assert.True(t, result.HasAmount)
}

func TestEvaluate_UnknownAirportRequiresManualReview(t *testing.T) {
	facts := FlightFacts{
		DepartureIATA: "FRA",
		ArrivalIATA:   "ZZZ",
		Incident:      IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.True(t, result.ManualReviewRequired)
	assert.Contains(t, result.Reasons, "unknown_airport")
}

func TestEvaluate_DepartureEstimateFallbackUsesTaxiIn(t *testing.T) {
	sched := mustParse(t, "2026-03-10T18:30:00Z")
	schedDep := mustParse(t, "2026-03-10T10:00:00Z")
	actualDep := mustParse(t, "2026-03-10T13:00:00Z") // departed 3h late

	facts := FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: schedDep,
		ScheduledArrival:   sched,
		ActualDeparture:    &actualDep,
		Status:             StatusDeparted,
		Incident:           IncidentDelay,
	}

	result, err := Evaluate(facts, RegionEU, time.Time{})
	require.NoError(t, err)

	assert.Contains(t, result.Reasons, "gate_arrival_estimated_from_departure_plus_taxi")
	assert.True(t, result.Eligible)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// FRA to IAD is roughly 6500km.
	d := Haversine(50.037933, 8.562152, 38.944533, -77.455811)
	assert.InDelta(t, 6500, d, 200)
}
