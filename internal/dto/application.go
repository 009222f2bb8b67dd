package dto

import (
	"encoding/json"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

// CreateApplicationRequest opens a new application in PENDING_MOL.
type CreateApplicationRequest struct {
	CandidateRef   string                 `json:"candidateRef" validate:"required,max=64"`
	ClientRef      string                 `json:"clientRef" validate:"required,max=64"`
	BrokerRef      *string                `json:"brokerRef,omitempty" validate:"omitempty,max=64"`
	Type           models.ApplicationType `json:"type" validate:"required,oneof=NEW_CANDIDATE GUARANTOR_CHANGE"`
	FeeTemplateID  *string                `json:"feeTemplateId,omitempty" validate:"omitempty,uuid"`
	FinalFeeAmount *float64               `json:"finalFeeAmount,omitempty" validate:"omitempty,gte=0"`
	Notes          string                 `json:"notes" validate:"max=2000"`
}

// UpdateApplicationRequest edits non-lifecycle fields. Version must match the stored row.
// Status and arrival date are captured so they can be rejected explicitly instead of ignored.
type UpdateApplicationRequest struct {
	Version          int             `json:"version" validate:"required,min=1"`
	CandidateRef     *string         `json:"candidateRef,omitempty" validate:"omitempty,min=1,max=64"`
	ClientRef        *string         `json:"clientRef,omitempty" validate:"omitempty,min=1,max=64"`
	BrokerRef        *string         `json:"brokerRef,omitempty" validate:"omitempty,max=64"`
	FeeTemplateID    *string         `json:"feeTemplateId,omitempty" validate:"omitempty,uuid"`
	FinalFeeAmount   *float64        `json:"finalFeeAmount,omitempty" validate:"omitempty,gte=0"`
	Notes            *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Status           json.RawMessage `json:"status,omitempty" swaggerignore:"true"`
	ExactArrivalDate json.RawMessage `json:"exactArrivalDate,omitempty" swaggerignore:"true"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	Status       string `form:"status"`
	Type         string `form:"type"`
	ClientRef    string `form:"clientRef"`
	CandidateRef string `form:"candidateRef"`
	Page         int    `form:"page"`
	PageSize     int    `form:"pageSize"`
}

// TransitionOptions lists the statuses reachable from the current one with the current stage's
// document completion.
type TransitionOptions struct {
	Current    models.ApplicationStatus   `json:"current"`
	Allowed    []models.ApplicationStatus `json:"allowed"`
	Completion models.StageCompletion     `json:"completion"`
}

// UpdateChecklistItemRequest changes one document's review state.
// Status accepts the canonical enum and the legacy RECEIVED/SUBMITTED names.
type UpdateChecklistItemRequest struct {
	Status  string  `json:"status" validate:"required"`
	FileURL *string `json:"fileUrl,omitempty" validate:"omitempty,max=1024"`
	Notes   *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CreateRequirementRequest adds a document requirement template.
type CreateRequirementRequest struct {
	ApplicationType models.ApplicationType   `json:"applicationType" validate:"required,oneof=NEW_CANDIDATE GUARANTOR_CHANGE"`
	Stage           models.ApplicationStatus `json:"stage" validate:"required"`
	Name            string                   `json:"name" validate:"required,max=200"`
	RequiredFrom    models.RequiredFrom      `json:"requiredFrom" validate:"required,oneof=OFFICE CLIENT"`
	Required        *bool                    `json:"required,omitempty"`
	Order           int                      `json:"order" validate:"gte=0"`
}
