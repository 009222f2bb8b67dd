package models

import "time"

// Payment is money received from a client for an application.
type Payment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	CompanyID     string    `db:"company_id" json:"company_id"`
	ClientRef     string    `db:"client_ref" json:"client_ref"`
	Amount        float64   `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	PaidAt        time.Time `db:"paid_at" json:"paid_at"`
	Type          string    `db:"type" json:"type"`
	Refundable    bool      `db:"refundable" json:"refundable"`
	SettlementID  *string   `db:"settlement_id" json:"settlement_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CostType enumerates office expenditure categories.
type CostType string

const (
	CostAgentFee     CostType = "AGENT_FEE"
	CostBrokerFee    CostType = "BROKER_FEE"
	CostGovFee       CostType = "GOV_FEE"
	CostTicket       CostType = "TICKET"
	CostExpeditedFee CostType = "EXPEDITED_FEE"
	CostAttorneyFee  CostType = "ATTORNEY_FEE"
	CostOther        CostType = "OTHER"
)

// Cost is money spent by the office on an application.
type Cost struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	CompanyID     string    `db:"company_id" json:"company_id"`
	Amount        float64   `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	IncurredAt    time.Time `db:"incurred_at" json:"incurred_at"`
	Type          CostType  `db:"type" json:"type"`
	Description   string    `db:"description" json:"description"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// FeeTemplate prices a service for a nationality.
type FeeTemplate struct {
	ID           string         `db:"id" json:"id"`
	CompanyID    string         `db:"company_id" json:"company_id"`
	Name         string         `db:"name" json:"name"`
	Nationality  string         `db:"nationality" json:"nationality"`
	ServiceType  string         `db:"service_type" json:"service_type"`
	Currency     string         `db:"currency" json:"currency"`
	DefaultPrice float64        `db:"default_price" json:"default_price"`
	MinPrice     float64        `db:"min_price" json:"min_price"`
	MaxPrice     float64        `db:"max_price" json:"max_price"`
	Active       bool           `db:"active" json:"active"`
	Components   []FeeComponent `db:"-" json:"components"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// FeeComponent is a named slice of a fee with its own refund policy.
type FeeComponent struct {
	ID         string  `db:"id" json:"id"`
	TemplateID string  `db:"template_id" json:"template_id"`
	Name       string  `db:"name" json:"name"`
	Amount     float64 `db:"amount" json:"amount"`
	Currency   string  `db:"currency" json:"currency"`
	Refundable bool    `db:"refundable" json:"refundable"`
	Order      int     `db:"sort_order" json:"order"`
}
