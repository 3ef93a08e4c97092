package services

import (
	"context"
	"errors"
	"strings"

	"sharedtrips/internal/domain"
	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/repositories"
	"sharedtrips/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReservationService is the only writer of seat counts and request statuses.
// Every mutation of one trip runs under that trip's lock and inside a store
// transaction holding the trip row, so check-then-write sequences cannot
// interleave. Different trips never share a lock.
type ReservationService struct {
	Store repositories.ReservationStore
	locks *utils.KeyedMutex
}

func NewReservationService(store repositories.ReservationStore) *ReservationService {
	return &ReservationService{Store: store, locks: utils.NewKeyedMutex()}
}

func (s *ReservationService) CreateTrip(ctx context.Context, in models.TripInput) (models.Trip, error) {
	trip, err := validateTripInput(in)
	if err != nil {
		return models.Trip{}, err
	}
	trip.ID = uuid.NewString()
	trip.CreatedAt = utils.NowUTC()

	if err := s.Store.InsertTrip(ctx, trip); err != nil {
		return models.Trip{}, domain.InternalError{Msg: "failed to save trip", Err: err}
	}
	log.Info().Str("module", "reservation").Str("trip", trip.ID).
		Str("from", trip.From).Str("to", trip.To).Int("seats", trip.SeatsTotal).Msg("trip created")
	return trip, nil
}

func validateTripInput(in models.TripInput) (models.Trip, error) {
	t := models.Trip{
		From:   utils.NormalizeSpace(in.From),
		To:     utils.NormalizeSpace(in.To),
		Driver: utils.NormalizeSpace(in.Driver),
	}
	switch {
	case t.From == "":
		return t, domain.ValidationError{Field: "from", Msg: "required"}
	case t.To == "":
		return t, domain.ValidationError{Field: "to", Msg: "required"}
	case strings.TrimSpace(in.Date) == "":
		return t, domain.ValidationError{Field: "date", Msg: "required"}
	case strings.TrimSpace(in.Time) == "":
		return t, domain.ValidationError{Field: "time", Msg: "required"}
	case t.Driver == "":
		return t, domain.ValidationError{Field: "driver", Msg: "required"}
	case in.SeatsTotal <= 0:
		return t, domain.ValidationError{Field: "seatsTotal", Msg: "must be a positive integer"}
	}

	date, err := utils.ParseDate(in.Date)
	if err != nil {
		return t, domain.ValidationError{Field: "date", Msg: "expected YYYY-MM-DD", Err: err}
	}
	clock, err := utils.ParseClock(in.Time)
	if err != nil {
		return t, domain.ValidationError{Field: "time", Msg: "expected HH:MM", Err: err}
	}
	t.Date = date
	t.Time = clock
	t.SeatsTotal = in.SeatsTotal
	return t, nil
}

func (s *ReservationService) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Trip{}, domain.ValidationError{Field: "tripId", Msg: "required"}
	}
	trip, err := s.Store.GetTrip(ctx, id)
	if err != nil {
		return models.Trip{}, storeError(err, "trip", id)
	}
	return trip, nil
}

func (s *ReservationService) ListTrips(ctx context.Context, f models.TripFilter) ([]models.TripListing, error) {
	out, err := s.Store.ListTrips(ctx, f)
	if err != nil {
		return nil, domain.InternalError{Msg: "failed to list trips", Err: err}
	}
	return out, nil
}

func (s *ReservationService) ListRequests(ctx context.Context, tripID string) ([]models.JoinRequest, error) {
	_, reqs, err := s.TripWithRequests(ctx, tripID)
	return reqs, err
}

// TripWithRequests returns a trip and its requests from one consistent read,
// so seatsTaken always matches the APPROVED requests returned with it.
func (s *ReservationService) TripWithRequests(ctx context.Context, id string) (models.Trip, []models.JoinRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Trip{}, nil, domain.ValidationError{Field: "tripId", Msg: "required"}
	}
	trip, reqs, err := s.Store.GetTripWithRequests(ctx, id)
	if err != nil {
		return models.Trip{}, nil, storeError(err, "trip", id)
	}
	if reqs == nil {
		reqs = []models.JoinRequest{}
	}
	return trip, reqs, nil
}

// SubmitJoinRequest records a PENDING request. Seats are reserved only on
// approval, so seatsTaken is not touched here.
func (s *ReservationService) SubmitJoinRequest(ctx context.Context, tripID, userID string) (models.JoinRequest, error) {
	tripID = strings.TrimSpace(tripID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.JoinRequest{}, domain.ValidationError{Field: "userId", Msg: "required"}
	}
	if tripID == "" {
		return models.JoinRequest{}, domain.ValidationError{Field: "tripId", Msg: "required"}
	}

	unlock := s.locks.Lock(tripID)
	defer unlock()

	var created models.JoinRequest
	err := s.Store.WithTrip(ctx, tripID, func(tx repositories.TripTx) error {
		if existing, ok, err := tx.FindLiveRequest(ctx, userID); err != nil {
			return err
		} else if ok {
			return domain.ConflictError{Resource: "join request", Msg: "user already has a " + strings.ToLower(string(existing.Status)) + " request for this trip"}
		}

		now := utils.NowUTC()
		created = models.JoinRequest{
			ID:        uuid.NewString(),
			TripID:    tripID,
			UserID:    userID,
			Status:    models.RequestPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.InsertRequest(ctx, created)
	})
	if err != nil {
		return models.JoinRequest{}, storeError(err, "trip", tripID)
	}
	log.Info().Str("module", "reservation").Str("trip", tripID).Str("request", created.ID).Str("user", userID).Msg("join request submitted")
	return created, nil
}

// DecideJoinRequest applies approve or decline to a PENDING request. An
// approval takes a seat in the same transaction; a full trip rejects it with
// CapacityError and the request stays PENDING.
func (s *ReservationService) DecideJoinRequest(ctx context.Context, tripID, requestID string, decision models.Decision) (models.JoinRequest, error) {
	tripID = strings.TrimSpace(tripID)
	requestID = strings.TrimSpace(requestID)
	var target models.RequestStatus
	switch models.Decision(strings.ToLower(string(decision))) {
	case models.DecisionApprove:
		target = models.RequestApproved
	case models.DecisionDecline:
		target = models.RequestDeclined
	default:
		return models.JoinRequest{}, domain.ValidationError{Field: "action", Msg: "must be approve or decline"}
	}
	if tripID == "" || requestID == "" {
		return models.JoinRequest{}, domain.ValidationError{Field: "requestId", Msg: "required"}
	}

	unlock := s.locks.Lock(tripID)
	defer unlock()

	var decided models.JoinRequest
	err := s.Store.WithTrip(ctx, tripID, func(tx repositories.TripTx) error {
		req, err := tx.GetRequest(ctx, requestID)
		if errors.Is(err, repositories.ErrNotFound) || (err == nil && req.TripID != tripID) {
			return domain.NotFoundError{Resource: "join request", ID: requestID}
		}
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return domain.ConflictError{Resource: "join request", Msg: "already " + strings.ToLower(string(req.Status))}
		}

		if target == models.RequestApproved {
			trip := tx.Trip()
			if trip.SeatsTaken >= trip.SeatsTotal {
				return domain.CapacityError{TripID: tripID, SeatsTotal: trip.SeatsTotal}
			}
			ok, err := tx.TakeSeat(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return domain.CapacityError{TripID: tripID, SeatsTotal: trip.SeatsTotal}
			}
		}

		now := utils.NowUTC()
		ok, err := tx.MarkRequest(ctx, requestID, models.RequestPending, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ConflictError{Resource: "join request", Msg: "status changed concurrently"}
		}
		req.Status = target
		req.UpdatedAt = now
		decided = req
		return nil
	})
	if err != nil {
		if domain.IsCapacity(err) {
			log.Warn().Str("module", "reservation").Str("trip", tripID).Str("request", requestID).Msg("approval rejected, trip full")
		}
		return models.JoinRequest{}, storeError(err, "trip", tripID)
	}
	log.Info().Str("module", "reservation").Str("trip", tripID).Str("request", requestID).Str("status", string(decided.Status)).Msg("join request decided")
	return decided, nil
}

// storeError passes domain errors through and maps store errors onto them.
func storeError(err error, resource, id string) error {
	switch {
	case domain.IsValidation(err), domain.IsNotFound(err), domain.IsConflict(err), domain.IsCapacity(err):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return domain.NotFoundError{Resource: resource, ID: id, Err: err}
	default:
		return domain.InternalError{Msg: "storage failure", Err: err}
	}
}
