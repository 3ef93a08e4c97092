package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestDeclined RequestStatus = "DECLINED"
)

// Live reports whether the status still holds the (trip, user) slot.
func (s RequestStatus) Live() bool {
	return s == RequestPending || s == RequestApproved
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

type JoinRequest struct {
	ID        string        `json:"id"`
	TripID    string        `json:"tripId"`
	UserID    string        `json:"userId"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (r JoinRequest) Summary() RequestSummary {
	return RequestSummary{ID: r.ID, UserID: r.UserID, Status: r.Status}
}

// RequestSummary is the shape embedded in trip listings.
type RequestSummary struct {
	ID     string        `json:"id"`
	UserID string        `json:"userId"`
	Status RequestStatus `json:"status"`
}
