package models

import (
	"strings"
	"time"
)

// DocumentStatus is the canonical review state of a checklist item.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentInReview DocumentStatus = "IN_REVIEW"
	DocumentApproved DocumentStatus = "APPROVED"
	DocumentRejected DocumentStatus = "REJECTED"
)

// legacyDocumentStatuses maps the older received/submitted vocabulary onto the canonical enum.
var legacyDocumentStatuses = map[string]DocumentStatus{
	"RECEIVED":  DocumentApproved,
	"SUBMITTED": DocumentInReview,
}

// ParseDocumentStatus normalises raw into a canonical status. The boolean is false for unknown input.
func ParseDocumentStatus(raw string) (DocumentStatus, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch DocumentStatus(value) {
	case DocumentPending, DocumentInReview, DocumentApproved, DocumentRejected:
		return DocumentStatus(value), true
	}
	if mapped, ok := legacyDocumentStatuses[value]; ok {
		return mapped, true
	}
	return "", false
}

// RequiredFrom identifies the party responsible for supplying a document.
type RequiredFrom string

const (
	RequiredFromOffice RequiredFrom = "OFFICE"
	RequiredFromClient RequiredFrom = "CLIENT"
)

// DocumentRequirement is a per-tenant template row describing a document needed at a stage.
type DocumentRequirement struct {
	ID              string            `db:"id" json:"id"`
	CompanyID       string            `db:"company_id" json:"company_id"`
	ApplicationType ApplicationType   `db:"application_type" json:"application_type"`
	Stage           ApplicationStatus `db:"stage" json:"stage"`
	Name            string            `db:"name" json:"name"`
	RequiredFrom    RequiredFrom      `db:"required_from" json:"required_from"`
	Required        bool              `db:"required" json:"required"`
	Order           int               `db:"sort_order" json:"order"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// ChecklistItem tracks one document for one application.
type ChecklistItem struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	CompanyID     string            `db:"company_id" json:"company_id"`
	RequirementID *string           `db:"requirement_id" json:"requirement_id,omitempty"`
	Name          string            `db:"name" json:"name"`
	Stage         ApplicationStatus `db:"stage" json:"stage"`
	RequiredFrom  RequiredFrom      `db:"required_from" json:"required_from"`
	Required      bool              `db:"required" json:"required"`
	Status        DocumentStatus    `db:"status" json:"status"`
	FileURL       *string           `db:"file_url" json:"file_url,omitempty"`
	Notes         string            `db:"notes" json:"notes"`
	UpdatedBy     *string           `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// StageCompletion reports whether a stage's required documents are all approved.
type StageCompletion struct {
	Stage    ApplicationStatus `json:"stage"`
	Complete bool              `json:"complete"`
	Missing  []string          `json:"missing"`
	Rejected []string          `json:"rejected"`
	Pending  []string          `json:"pending"`
}
