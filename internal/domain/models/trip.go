package models

import "time"

// Trip is a ride offered by a driver. SeatsTaken only ever moves up, and only
// through an approved join request.
type Trip struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Driver     string    `json:"driver"`
	SeatsTotal int       `json:"seatsTotal"`
	SeatsTaken int       `json:"seatsTaken"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (t Trip) SeatsLeft() int {
	return t.SeatsTotal - t.SeatsTaken
}

// TripInput carries the client-supplied fields of a new trip.
type TripInput struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Driver     string `json:"driver"`
	SeatsTotal int    `json:"seatsTotal"`
}

// TripFilter holds optional equality filters; empty fields match everything.
type TripFilter struct {
	From string
	To   string
	Date string
}

// TripListing is a trip annotated with the requests made against it.
type TripListing struct {
	Trip
	Requests []RequestSummary `json:"requests"`
}
