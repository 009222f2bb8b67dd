package service

import "github.com/noah-isme/agency-backoffice-api/internal/models"

// mainline is the forward path an application takes when nothing goes wrong.
var mainline = []models.ApplicationStatus{
	models.StatusPendingMOL,
	models.StatusMOLAuthReceived,
	models.StatusVisaProcessing,
	models.StatusVisaReceived,
	models.StatusWorkerArrived,
	models.StatusLabourPermitProcessing,
	models.StatusResidencyPermitProcessing,
	models.StatusActiveEmployment,
}

var stageIndex = func() map[models.ApplicationStatus]int {
	idx := make(map[models.ApplicationStatus]int, len(mainline)+1)
	for i, status := range mainline {
		idx[status] = i
	}
	// Renewal sits alongside active employment.
	idx[models.StatusRenewalPending] = len(mainline) - 1
	return idx
}()

var forwardEdges = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusPendingMOL:                {models.StatusMOLAuthReceived},
	models.StatusMOLAuthReceived:           {models.StatusVisaProcessing},
	models.StatusVisaProcessing:            {models.StatusVisaReceived},
	models.StatusVisaReceived:              {models.StatusWorkerArrived},
	models.StatusWorkerArrived:             {models.StatusLabourPermitProcessing},
	models.StatusLabourPermitProcessing:    {models.StatusResidencyPermitProcessing},
	models.StatusResidencyPermitProcessing: {models.StatusActiveEmployment},
	models.StatusActiveEmployment:          {models.StatusContractEnded, models.StatusRenewalPending},
	models.StatusRenewalPending:            {models.StatusActiveEmployment, models.StatusContractEnded},
}

// IsKnownStatus reports whether status is part of the lifecycle.
func IsKnownStatus(status models.ApplicationStatus) bool {
	if _, ok := stageIndex[status]; ok {
		return true
	}
	return IsTerminal(status)
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.ApplicationStatus) bool {
	switch status {
	case models.StatusContractEnded,
		models.StatusCancelledPreArrival,
		models.StatusCancelledPostArrival,
		models.StatusCancelledCandidate:
		return true
	}
	return false
}

// IsCancellation reports whether status is one of the cancelled branches.
func IsCancellation(status models.ApplicationStatus) bool {
	switch status {
	case models.StatusCancelledPreArrival, models.StatusCancelledPostArrival, models.StatusCancelledCandidate:
		return true
	}
	return false
}

// IsBeforeArrival reports whether status precedes WORKER_ARRIVED on the mainline.
func IsBeforeArrival(status models.ApplicationStatus) bool {
	idx, ok := stageIndex[status]
	return ok && idx < stageIndex[models.StatusWorkerArrived]
}

// StatusesThrough lists the open statuses that have not yet moved past stage.
func StatusesThrough(stage models.ApplicationStatus) []models.ApplicationStatus {
	limit, ok := stageIndex[stage]
	if !ok {
		return nil
	}
	out := make([]models.ApplicationStatus, 0, len(mainline)+1)
	for _, status := range append(append([]models.ApplicationStatus{}, mainline...), models.StatusRenewalPending) {
		if stageIndex[status] <= limit {
			out = append(out, status)
		}
	}
	return out
}

// AllowedTransitions lists every status reachable in one step from `from`, forward edges first.
func AllowedTransitions(from models.ApplicationStatus) []models.ApplicationStatus {
	idx, ok := stageIndex[from]
	if !ok {
		return []models.ApplicationStatus{}
	}

	next := append([]models.ApplicationStatus{}, forwardEdges[from]...)
	if IsBeforeArrival(from) {
		next = append(next, models.StatusCancelledPreArrival)
	} else {
		next = append(next, models.StatusCancelledPostArrival)
	}
	if idx < stageIndex[models.StatusActiveEmployment] {
		next = append(next, models.StatusCancelledCandidate)
	}
	return next
}

// CanTransition reports whether the lifecycle graph has an edge from `from` to `to`.
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, candidate := range AllowedTransitions(from) {
		if candidate == to {
			return true
		}
	}
	return false
}
