package service

import "github.com/manodhiambo/carwash-pos-sub000/internal/model"

// jobOrder is the fixed forward sequence. Cancelled is not part of it.
var jobOrder = map[string]int{
	model.JobCheckedIn: 0,
	model.JobInQueue:   1,
	model.JobWashing:   2,
	model.JobDetailing: 3,
	model.JobCompleted: 4,
	model.JobPaid:      5,
}

// ValidJobStatus reports whether s is a known job status.
func ValidJobStatus(s string) bool {
	if s == model.JobCancelled {
		return true
	}
	_, ok := jobOrder[s]
	return ok
}

// CanTransition reports whether a job may move from one status to another:
// strictly forward along the sequence, or to cancelled from anything but paid.
func CanTransition(from, to string) bool {
	if from == model.JobCancelled {
		return false
	}
	if to == model.JobCancelled {
		return from != model.JobPaid
	}
	fi, ok := jobOrder[from]
	if !ok {
		return false
	}
	ti, ok := jobOrder[to]
	if !ok {
		return false
	}
	return ti > fi
}
