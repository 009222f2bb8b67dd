package service

import (
	"math"
	"strings"
	"time"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

// RefundInput is everything the calculator needs. Policy is passed per call so callers and tests
// never depend on shared settings state.
type RefundInput struct {
	Class              models.CancellationClass
	CandidateInitiated bool
	Payments           []models.Payment
	Components         []models.FeeComponent
	Costs              []models.Cost
	Policy             models.CancellationPolicy
}

// ClassifyCancellation derives the cancellation class from where the application stands.
// A candidate cancelling after arrival is treated by the post-arrival rules.
func ClassifyCancellation(current, target models.ApplicationStatus, arrival *time.Time, cancelledAt time.Time, policy models.CancellationPolicy) (models.CancellationClass, error) {
	if !IsCancellation(target) {
		return "", appErrors.Clone(appErrors.ErrValidation, "target is not a cancellation status")
	}
	if IsBeforeArrival(current) {
		if target == models.StatusCancelledCandidate {
			return models.ClassPreArrivalCandidate, nil
		}
		return models.ClassPreArrivalClient, nil
	}
	if arrival == nil {
		return "", appErrors.Clone(appErrors.ErrMissingArrivalDate, "arrival date is required to classify a post-arrival cancellation")
	}
	windowEnd := arrival.AddDate(0, policy.ProbationMonths, 0)
	if cancelledAt.Before(windowEnd) {
		return models.ClassPostArrivalWithinProbation, nil
	}
	return models.ClassPostArrivalAfterProbation, nil
}

// CalculateRefund computes the settlement for a cancellation. It does not persist anything.
// Payments and fee components must share one currency. Costs booked in another currency are
// left out of AbsorbedCost and listed in ExcludedCosts.
func CalculateRefund(in RefundInput) (*models.CancellationSettlement, error) {
	currency, err := settlementCurrency(in)
	if err != nil {
		return nil, err
	}
	if err := validateRefundInput(in); err != nil {
		return nil, err
	}

	var refundablePaid, totalCosts float64
	for _, p := range in.Payments {
		if p.Refundable {
			refundablePaid += p.Amount
		}
	}
	var excluded []models.Cost
	for _, c := range in.Costs {
		if !strings.EqualFold(strings.TrimSpace(c.Currency), currency) {
			excluded = append(excluded, c)
			continue
		}
		totalCosts += c.Amount
	}
	refundablePaid = round2(refundablePaid)

	settlement := &models.CancellationSettlement{
		Class:            in.Class,
		ResponsibleParty: responsibleParty(in.Class, in.CandidateInitiated),
		Currency:         currency,
		RefundablePaid:   refundablePaid,
		Policy:           in.Policy,
		ExcludedCosts:    excluded,
	}
	breakdown := make(models.SettlementBreakdown, 0, len(in.Components))
	for _, c := range in.Components {
		breakdown = append(breakdown, models.ComponentBreakdown{
			ComponentID: c.ID,
			Name:        c.Name,
			Amount:      round2(c.Amount),
			Refundable:  c.Refundable,
		})
	}

	switch in.Class {
	case models.ClassPreArrivalClient:
		settlement.PenaltyAmount = round2(refundablePaid * in.Policy.PenaltyPercent / 100)
		settlement.RefundAmount = round2(refundablePaid - settlement.PenaltyAmount)
	case models.ClassPreArrivalCandidate:
		settlement.RefundAmount = refundablePaid
	case models.ClassPostArrivalWithinProbation:
		for i := range breakdown {
			breakdown[i].Eligible = breakdown[i].Refundable
		}
		settlement.RefundAmount, settlement.ForfeitedAmount = allocate(breakdown, 100, refundablePaid)
	case models.ClassPostArrivalAfterProbation:
		eligible := eligibleSet(in.Policy.PostProbationEligibleComponents)
		for i := range breakdown {
			_, listed := eligible[strings.ToLower(strings.TrimSpace(breakdown[i].Name))]
			breakdown[i].Eligible = breakdown[i].Refundable && listed
		}
		settlement.RefundAmount, settlement.ForfeitedAmount = allocate(breakdown, in.Policy.PostProbationRefundPercent, refundablePaid)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown cancellation class")
	}

	settlement.Breakdown = breakdown
	settlement.AbsorbedCost = round2(math.Max(0, totalCosts-settlement.PenaltyAmount-settlement.ForfeitedAmount))
	return settlement, nil
}

// allocate refunds percent of each eligible line, in order, without exceeding limit. Whatever a
// line does not refund is forfeited.
func allocate(lines models.SettlementBreakdown, percent, limit float64) (refund, forfeited float64) {
	remaining := limit
	for i := range lines {
		line := &lines[i]
		if line.Eligible {
			share := round2(math.Min(line.Amount*percent/100, math.Max(remaining, 0)))
			line.Refunded = share
			remaining -= share
			refund += share
		}
		line.Forfeited = round2(line.Amount - line.Refunded)
		forfeited += line.Forfeited
	}
	return round2(refund), round2(forfeited)
}

func responsibleParty(class models.CancellationClass, candidateInitiated bool) models.ResponsibleParty {
	if candidateInitiated {
		return models.PartyCandidate
	}
	switch class {
	case models.ClassPreArrivalCandidate:
		return models.PartyCandidate
	case models.ClassPostArrivalWithinProbation:
		return models.PartyOffice
	default:
		return models.PartyClient
	}
}

func settlementCurrency(in RefundInput) (string, error) {
	var currency string
	check := func(value string) error {
		value = strings.ToUpper(strings.TrimSpace(value))
		if currency == "" {
			currency = value
			return nil
		}
		if value != currency {
			return appErrors.WithDetails(appErrors.ErrCurrencyMismatch, map[string]string{"expected": currency, "found": value})
		}
		return nil
	}
	for _, p := range in.Payments {
		if err := check(p.Currency); err != nil {
			return "", err
		}
	}
	for _, c := range in.Components {
		if err := check(c.Currency); err != nil {
			return "", err
		}
	}
	// Costs are the office's own spend and may be booked in any currency. They only pick the
	// currency when nothing the client paid or was priced in names one.
	if currency == "" && len(in.Costs) > 0 {
		currency = strings.ToUpper(strings.TrimSpace(in.Costs[0].Currency))
	}
	return currency, nil
}

func validateRefundInput(in RefundInput) error {
	if in.Policy.PenaltyPercent < 0 || in.Policy.PenaltyPercent > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "penalty percent must be between 0 and 100")
	}
	if in.Policy.PostProbationRefundPercent < 0 || in.Policy.PostProbationRefundPercent > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "post-probation refund percent must be between 0 and 100")
	}
	for _, p := range in.Payments {
		if p.Amount < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "payment amounts must not be negative")
		}
	}
	for _, c := range in.Components {
		if c.Amount < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "fee component amounts must not be negative")
		}
	}
	for _, c := range in.Costs {
		if c.Amount < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "cost amounts must not be negative")
		}
	}
	return nil
}

func eligibleSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return set
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
