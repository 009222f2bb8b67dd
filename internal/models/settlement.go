package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CancellationClass selects the refund rule applied to a cancelled application.
type CancellationClass string

const (
	ClassPreArrivalClient           CancellationClass = "PRE_ARRIVAL_CLIENT"
	ClassPreArrivalCandidate        CancellationClass = "PRE_ARRIVAL_CANDIDATE"
	ClassPostArrivalWithinProbation CancellationClass = "POST_ARRIVAL_WITHIN_PROBATION"
	ClassPostArrivalAfterProbation  CancellationClass = "POST_ARRIVAL_AFTER_PROBATION"
)

// ResponsibleParty names who bears the cancellation.
type ResponsibleParty string

const (
	PartyClient    ResponsibleParty = "CLIENT"
	PartyCandidate ResponsibleParty = "CANDIDATE"
	PartyOffice    ResponsibleParty = "OFFICE"
)

// CancellationPolicy is the tenant-configurable input to the refund calculator.
type CancellationPolicy struct {
	PenaltyPercent                  float64  `json:"penalty_percent"`
	ProbationMonths                 int      `json:"probation_months"`
	PostProbationRefundPercent      float64  `json:"post_probation_refund_percent"`
	PostProbationEligibleComponents []string `json:"post_probation_eligible_components"`
}

// Value marshals the policy to JSON for persistence.
func (p CancellationPolicy) Value() (driver.Value, error) {
	if p.PostProbationEligibleComponents == nil {
		p.PostProbationEligibleComponents = []string{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal cancellation policy: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the policy.
func (p *CancellationPolicy) Scan(value interface{}) error {
	*p = CancellationPolicy{}
	return scanJSON(value, p, "CancellationPolicy")
}

// ComponentBreakdown shows how one fee component was treated by a settlement.
type ComponentBreakdown struct {
	ComponentID string  `json:"component_id"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	Refundable  bool    `json:"refundable"`
	Eligible    bool    `json:"eligible"`
	Refunded    float64 `json:"refunded"`
	Forfeited   float64 `json:"forfeited"`
}

// SettlementBreakdown is the JSONB-backed list of component outcomes.
type SettlementBreakdown []ComponentBreakdown

// Value marshals the breakdown to JSON for persistence.
func (b SettlementBreakdown) Value() (driver.Value, error) {
	if b == nil {
		b = SettlementBreakdown{}
	}
	data, err := json.Marshal([]ComponentBreakdown(b))
	if err != nil {
		return nil, fmt.Errorf("marshal settlement breakdown: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the breakdown.
func (b *SettlementBreakdown) Scan(value interface{}) error {
	*b = nil
	return scanJSON(value, b, "SettlementBreakdown")
}

// CancellationSettlement is the persisted outcome of a cancellation. Computed values are never
// replaced by an override; override columns sit beside them.
type CancellationSettlement struct {
	ID               string              `db:"id" json:"id"`
	ApplicationID    string              `db:"application_id" json:"application_id"`
	CompanyID        string              `db:"company_id" json:"company_id"`
	Class            CancellationClass   `db:"class" json:"class"`
	ResponsibleParty ResponsibleParty    `db:"responsible_party" json:"responsible_party"`
	Currency         string              `db:"currency" json:"currency"`
	RefundablePaid   float64             `db:"refundable_paid" json:"refundable_paid"`
	RefundAmount     float64             `db:"refund_amount" json:"refund_amount"`
	PenaltyAmount    float64             `db:"penalty_amount" json:"penalty_amount"`
	ForfeitedAmount  float64             `db:"forfeited_amount" json:"forfeited_amount"`
	AbsorbedCost     float64             `db:"absorbed_cost" json:"absorbed_cost"`
	ExcludedCosts    []Cost              `db:"-" json:"excluded_costs,omitempty"`
	Breakdown        SettlementBreakdown `db:"breakdown" json:"breakdown"`
	Policy           CancellationPolicy  `db:"policy" json:"policy"`
	OverrideRefund   *float64            `db:"override_refund" json:"override_refund,omitempty"`
	OverridePenalty  *float64            `db:"override_penalty" json:"override_penalty,omitempty"`
	OverrideReason   *string             `db:"override_reason" json:"override_reason,omitempty"`
	OverriddenBy     *string             `db:"overridden_by" json:"overridden_by,omitempty"`
	OverriddenAt     *time.Time          `db:"overridden_at" json:"overridden_at,omitempty"`
	Finalized        bool                `db:"finalized" json:"finalized"`
	FinalizedBy      *string             `db:"finalized_by" json:"finalized_by,omitempty"`
	FinalizedAt      *time.Time          `db:"finalized_at" json:"finalized_at,omitempty"`
	ComputedBy       string              `db:"computed_by" json:"computed_by"`
	ComputedAt       time.Time           `db:"computed_at" json:"computed_at"`
}

// EffectiveRefund returns the override when present, the computed refund otherwise.
func (s *CancellationSettlement) EffectiveRefund() float64 {
	if s.OverrideRefund != nil {
		return *s.OverrideRefund
	}
	return s.RefundAmount
}

// EffectivePenalty returns the override when present, the computed penalty otherwise.
func (s *CancellationSettlement) EffectivePenalty() float64 {
	if s.OverridePenalty != nil {
		return *s.OverridePenalty
	}
	return s.PenaltyAmount
}

// TenantSettings stores per-company configuration.
type TenantSettings struct {
	CompanyID          string             `db:"company_id" json:"company_id"`
	CancellationPolicy CancellationPolicy `db:"cancellation_policy" json:"cancellation_policy"`
	UpdatedBy          *string            `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

func scanJSON(value interface{}, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
