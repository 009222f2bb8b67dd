package models

import "time"

// ApplicationType distinguishes a fresh recruitment from a sponsorship transfer.
type ApplicationType string

const (
	ApplicationTypeNewCandidate    ApplicationType = "NEW_CANDIDATE"
	ApplicationTypeGuarantorChange ApplicationType = "GUARANTOR_CHANGE"
)

// Valid reports whether t is a known application type.
func (t ApplicationType) Valid() bool {
	return t == ApplicationTypeNewCandidate || t == ApplicationTypeGuarantorChange
}

// ApplicationStatus is a node of the application lifecycle graph.
type ApplicationStatus string

const (
	StatusPendingMOL                ApplicationStatus = "PENDING_MOL"
	StatusMOLAuthReceived           ApplicationStatus = "MOL_AUTH_RECEIVED"
	StatusVisaProcessing            ApplicationStatus = "VISA_PROCESSING"
	StatusVisaReceived              ApplicationStatus = "VISA_RECEIVED"
	StatusWorkerArrived             ApplicationStatus = "WORKER_ARRIVED"
	StatusLabourPermitProcessing    ApplicationStatus = "LABOUR_PERMIT_PROCESSING"
	StatusResidencyPermitProcessing ApplicationStatus = "RESIDENCY_PERMIT_PROCESSING"
	StatusActiveEmployment          ApplicationStatus = "ACTIVE_EMPLOYMENT"
	StatusContractEnded             ApplicationStatus = "CONTRACT_ENDED"
	StatusRenewalPending            ApplicationStatus = "RENEWAL_PENDING"
	StatusCancelledPreArrival       ApplicationStatus = "CANCELLED_PRE_ARRIVAL"
	StatusCancelledPostArrival      ApplicationStatus = "CANCELLED_POST_ARRIVAL"
	StatusCancelledCandidate        ApplicationStatus = "CANCELLED_CANDIDATE"
)

// Application is the aggregate root for checklist items, payments, costs and settlements.
type Application struct {
	ID                  string            `db:"id" json:"id"`
	CompanyID           string            `db:"company_id" json:"company_id"`
	CandidateRef        string            `db:"candidate_ref" json:"candidate_ref"`
	ClientRef           string            `db:"client_ref" json:"client_ref"`
	BrokerRef           *string           `db:"broker_ref" json:"broker_ref,omitempty"`
	Type                ApplicationType   `db:"type" json:"type"`
	Status              ApplicationStatus `db:"status" json:"status"`
	ExactArrivalDate    *time.Time        `db:"exact_arrival_date" json:"exact_arrival_date,omitempty"`
	LaborPermitDate     *time.Time        `db:"labor_permit_date" json:"labor_permit_date,omitempty"`
	ResidencyPermitDate *time.Time        `db:"residency_permit_date" json:"residency_permit_date,omitempty"`
	PermitExpiryDate    *time.Time        `db:"permit_expiry_date" json:"permit_expiry_date,omitempty"`
	FeeTemplateID       *string           `db:"fee_template_id" json:"fee_template_id,omitempty"`
	FinalFeeAmount      *float64          `db:"final_fee_amount" json:"final_fee_amount,omitempty"`
	Notes               string            `db:"notes" json:"notes"`
	Version             int               `db:"version" json:"version"`
	CreatedBy           *string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	Status       ApplicationStatus
	Type         ApplicationType
	ClientRef    string
	CandidateRef string
	Page         int
	PageSize     int
}

// StatusHistory records one applied lifecycle transition.
type StatusHistory struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	CompanyID     string            `db:"company_id" json:"company_id"`
	FromStatus    ApplicationStatus `db:"from_status" json:"from_status"`
	ToStatus      ApplicationStatus `db:"to_status" json:"to_status"`
	ActorID       string            `db:"actor_id" json:"actor_id"`
	Note          string            `db:"note" json:"note"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// TransitionRequest carries the target status and any dates captured with it.
type TransitionRequest struct {
	Target              ApplicationStatus `json:"target" validate:"required"`
	ExactArrivalDate    *time.Time        `json:"exact_arrival_date,omitempty"`
	LaborPermitDate     *time.Time        `json:"labor_permit_date,omitempty"`
	ResidencyPermitDate *time.Time        `json:"residency_permit_date,omitempty"`
	PermitExpiryDate    *time.Time        `json:"permit_expiry_date,omitempty"`
	Note                string            `json:"note" validate:"max=500"`
}

// TransitionResult is returned after a transition commits.
type TransitionResult struct {
	Application *Application            `json:"application"`
	History     *StatusHistory          `json:"history"`
	Settlement  *CancellationSettlement `json:"settlement,omitempty"`
}
