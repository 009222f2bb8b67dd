package dto

import (
	"time"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

// PaymentRequest records money received for an application.
type PaymentRequest struct {
	Amount     float64   `json:"amount" validate:"gt=0"`
	Currency   string    `json:"currency" validate:"required,len=3,uppercase"`
	PaidAt     time.Time `json:"paidAt" validate:"required"`
	Type       string    `json:"type" validate:"required,max=64"`
	Refundable bool      `json:"refundable"`
}

// CostRequest records money spent by the office on an application.
type CostRequest struct {
	Amount      float64         `json:"amount" validate:"gt=0"`
	Currency    string          `json:"currency" validate:"required,len=3,uppercase"`
	IncurredAt  time.Time       `json:"incurredAt" validate:"required"`
	Type        models.CostType `json:"type" validate:"required,oneof=AGENT_FEE BROKER_FEE GOV_FEE TICKET EXPEDITED_FEE ATTORNEY_FEE OTHER"`
	Description string          `json:"description" validate:"max=500"`
}

// FeeComponentRequest is one priced component of a fee template.
type FeeComponentRequest struct {
	Name       string  `json:"name" validate:"required,max=120"`
	Amount     float64 `json:"amount" validate:"gte=0"`
	Currency   string  `json:"currency" validate:"required,len=3,uppercase"`
	Refundable bool    `json:"refundable"`
	Order      int     `json:"order" validate:"gte=0"`
}

// FeeTemplateRequest creates or replaces a fee template and its components.
type FeeTemplateRequest struct {
	Name         string                `json:"name" validate:"required,max=120"`
	Nationality  string                `json:"nationality" validate:"required,max=64"`
	ServiceType  string                `json:"serviceType" validate:"required,max=64"`
	Currency     string                `json:"currency" validate:"required,len=3,uppercase"`
	DefaultPrice float64               `json:"defaultPrice" validate:"gte=0"`
	MinPrice     float64               `json:"minPrice" validate:"gte=0"`
	MaxPrice     float64               `json:"maxPrice" validate:"gte=0"`
	Active       *bool                 `json:"active,omitempty"`
	Components   []FeeComponentRequest `json:"components" validate:"dive"`
}

// FeeTemplateQuery filters template listings.
type FeeTemplateQuery struct {
	Nationality string `form:"nationality"`
	ServiceType string `form:"serviceType"`
}

// OverrideSettlementRequest replaces the effective refund and/or penalty with a reason.
type OverrideSettlementRequest struct {
	Refund  *float64 `json:"refund,omitempty" validate:"omitempty,gte=0"`
	Penalty *float64 `json:"penalty,omitempty" validate:"omitempty,gte=0"`
	Reason  string   `json:"reason" validate:"required,min=3,max=500"`
}
