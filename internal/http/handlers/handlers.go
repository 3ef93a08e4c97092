package handlers

import (
	"sharedtrips/internal/chat"
	"sharedtrips/internal/repositories"
	"sharedtrips/internal/services"
)

// Handlers carries the components every route needs. It is built once in
// main and shared by all requests.
type Handlers struct {
	Reservations *services.ReservationService
	Chat         *chat.Hub
	Cities       repositories.CityDirectory
}
