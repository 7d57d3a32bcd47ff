// Package eligibility evaluates EU261-style compensation eligibility as a
// pure function of flight facts and a passenger's home region: no
// database access, no clock reads beyond the caller-supplied "now".
package eligibility

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Region selects which regulation (and currency) applies to a claim.
type Region string

const (
	RegionEU Region = "EU"
	RegionUS Region = "US"
	RegionCA Region = "CA"
)

// FlightStatus mirrors the provider's reported flight state.
type FlightStatus string

const (
	StatusScheduled     FlightStatus = "scheduled"
	StatusDeparted      FlightStatus = "departed"
	StatusArrived       FlightStatus = "arrived"
	StatusDelayed       FlightStatus = "delayed"
	StatusCancelled     FlightStatus = "cancelled"
	StatusDiverted      FlightStatus = "diverted"
	StatusDeniedBoard   FlightStatus = "denied_boarding"
)

// Incident is the claimant's classification of what went wrong; it can
// disagree with Status (e.g. a provider reports "arrived" on a flight the
// passenger is claiming as a denied boarding).
type Incident string

const (
	IncidentDelay           Incident = "delay"
	IncidentCancellation    Incident = "cancellation"
	IncidentDeniedBoarding  Incident = "denied_boarding"
	IncidentBaggageDelay    Incident = "baggage_delay"
)

// ExtraordinaryTag names an EU261 extraordinary-circumstances exemption.
type ExtraordinaryTag string

const (
	ExtraordinaryWeather ExtraordinaryTag = "weather"
	ExtraordinaryATC     ExtraordinaryTag = "air_traffic_control"
	ExtraordinarySecurity ExtraordinaryTag = "security"
	ExtraordinaryPolitical ExtraordinaryTag = "political"
)

// FlightFacts describes everything the engine needs to know about one leg.
type FlightFacts struct {
	DepartureIATA      string
	ArrivalIATA        string
	ScheduledDeparture time.Time
	ScheduledArrival   time.Time
	ActualDeparture    *time.Time
	ActualArrival      *time.Time
	Status             FlightStatus
	Incident           Incident
	Extraordinary      *ExtraordinaryTag
}

// Result is the outcome of evaluating one claim against EU261.
type Result struct {
	Eligible                bool
	Amount                  decimal.Decimal
	HasAmount               bool
	Currency                string
	Regulation              string
	Reasons                 []string
	Requirements            []string
	FlightDistanceKM        float64
	DelayHoursAtGate        float64
	ExtraordinaryCircumstances *ExtraordinaryTag
	ManualReviewRequired    bool
}

const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinates given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func currencyFor(region Region) string {
	switch region {
	case RegionUS:
		return "USD"
	case RegionCA:
		return "CAD"
	default:
		return "EUR"
	}
}

// Evaluate runs the EU261 rule path against facts for a passenger of the
// given region. now is accepted for interface symmetry with future
// regulations that may need a reference clock; this path does not use it.
func Evaluate(facts FlightFacts, region Region, now time.Time) (Result, error) {
	result := Result{
		Currency:   currencyFor(region),
		Regulation: "EU261",
	}

	if facts.DepartureIATA == facts.ArrivalIATA {
		result.Reasons = append(result.Reasons, "invalid_route")
		return result, nil
	}

	table, err := Airports()
	if err != nil {
		return Result{}, fmt.Errorf("eligibility: load airport table: %w", err)
	}

	dep, depOK := table[facts.DepartureIATA]
	arr, arrOK := table[facts.ArrivalIATA]
	if !depOK || !arrOK {
		result.ManualReviewRequired = true
		result.Reasons = append(result.Reasons, "unknown_airport")
		return result, nil
	}

	distance := Haversine(dep.Latitude, dep.Longitude, arr.Latitude, arr.Longitude)
	result.FlightDistanceKM = distance

	if facts.ScheduledArrival.IsZero() {
		result.Reasons = append(result.Reasons, "insufficient_data")
		return result, nil
	}

	delay, delayReasons := delayAtGate(facts, arr)
	result.DelayHoursAtGate = delay.Hours()
	result.Reasons = append(result.Reasons, delayReasons...)

	if facts.Extraordinary != nil {
		result.ExtraordinaryCircumstances = facts.Extraordinary
		result.ManualReviewRequired = true
		result.Reasons = append(result.Reasons, fmt.Sprintf("extraordinary_circumstances:%s", *facts.Extraordinary))
	}

	switch facts.Incident {
	case IncidentBaggageDelay:
		result.Reasons = append(result.Reasons, "baggage_delay_ineligible")
		return result, nil

	case IncidentCancellation, IncidentDeniedBoarding:
		result.Reasons = append(result.Reasons, string(facts.Incident))

	case IncidentDelay:
		if delay < 3*time.Hour {
			result.Reasons = append(result.Reasons, "delay_under_threshold")
			return result, nil
		}
		result.Reasons = append(result.Reasons, "delay >= 3h threshold")

	default:
		result.Reasons = append(result.Reasons, "insufficient_data")
		return result, nil
	}

	tierAmount, tierReason := tierAmount(distance, dep.Region, arr.Region)
	result.Reasons = append(result.Reasons, tierReason)

	amount := tierAmount
	if distance > 3500 && facts.Incident == IncidentDelay && delay > 3*time.Hour && delay < 4*time.Hour {
		amount = tierAmount.Div(decimal.NewFromInt(2))
		result.Reasons = append(result.Reasons, "partial_compensation_long_haul")
	}

	result.Eligible = true
	result.Amount = amount
	result.HasAmount = true
	return result, nil
}

// delayAtGate computes the regulation-relevant delay: the difference
// between scheduled and actual GATE arrival, never runway touchdown.
func delayAtGate(facts FlightFacts, arrivalAirport Airport) (time.Duration, []string) {
	var gateArrival time.Time
	var reasons []string

	switch {
	case facts.ActualArrival != nil:
		gateArrival = *facts.ActualArrival
	case facts.ActualDeparture != nil:
		blockTime := facts.ScheduledArrival.Sub(facts.ScheduledDeparture)
		estimatedTouchdown := facts.ActualDeparture.Add(blockTime)
		gateArrival = estimatedTouchdown.Add(time.Duration(arrivalAirport.TaxiInMinutes) * time.Minute)
		reasons = append(reasons, "gate_arrival_estimated_from_departure_plus_taxi")
	default:
		return 0, []string{"insufficient_data"}
	}

	delay := gateArrival.Sub(facts.ScheduledArrival)
	if delay < 0 {
		return 0, reasons
	}
	return delay, reasons
}

// tierAmount selects the EU261 distance tier.
func tierAmount(distanceKM float64, depRegion, arrRegion Region) (decimal.Decimal, string) {
	switch {
	case distanceKM <= 1500:
		return decimal.NewFromInt(250), fmt.Sprintf("distance %.0fkm <= 1500km", distanceKM)
	case distanceKM <= 3500:
		return decimal.NewFromInt(400), fmt.Sprintf("distance %.0fkm in (1500,3500]km", distanceKM)
	default:
		if depRegion == RegionEU && arrRegion == RegionEU {
			return decimal.NewFromInt(400), fmt.Sprintf("distance %.0fkm > 3500km intra-EU", distanceKM)
		}
		return decimal.NewFromInt(600), fmt.Sprintf("distance %.0fkm exceeds 3500km", distanceKM)
	}
}
