package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sharedtrips/internal/domain/models"
)

// ErrNotFound is returned by every store when a keyed record is missing.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the table repositories
// work the same inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TripTx is the store as seen from inside a transaction that holds the lock
// on one trip row. Nothing else may write that trip's seats or requests
// until the transaction ends.
type TripTx interface {
	Trip() models.Trip
	FindLiveRequest(ctx context.Context, userID string) (models.JoinRequest, bool, error)
	InsertRequest(ctx context.Context, req models.JoinRequest) error
	GetRequest(ctx context.Context, requestID string) (models.JoinRequest, error)
	// MarkRequest moves a request from one status to another and reports
	// false when the request was not in the expected status.
	MarkRequest(ctx context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error)
	// TakeSeat increments seatsTaken only while seatsTaken < seatsTotal and
	// reports false when the trip is already full.
	TakeSeat(ctx context.Context) (bool, error)
}

type ReservationStore interface {
	InsertTrip(ctx context.Context, trip models.Trip) error
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	ListTrips(ctx context.Context, filter models.TripFilter) ([]models.TripListing, error)
	ListRequests(ctx context.Context, tripID string) ([]models.JoinRequest, error)
	// GetTripWithRequests reads a trip and its requests as of one commit.
	GetTripWithRequests(ctx context.Context, id string) (models.Trip, []models.JoinRequest, error)
	// WithTrip runs fn inside a transaction scoped to the trip row. The
	// transaction commits only when fn returns nil. ErrNotFound is returned
	// without calling fn when the trip does not exist.
	WithTrip(ctx context.Context, tripID string, fn func(tx TripTx) error) error
}

type ChatLog interface {
	AppendMessage(ctx context.Context, msg models.ChatMessage) error
	ListMessages(ctx context.Context, tripID string) ([]models.ChatMessage, error)
	// LastMessageAt returns the newest timestamp logged for the trip, or the
	// zero time when the trip has no messages.
	LastMessageAt(ctx context.Context, tripID string) (time.Time, error)
}

type CityDirectory interface {
	ListCities(ctx context.Context) ([]models.City, error)
}

// Store is the MySQL-backed implementation of every store contract.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) trips(q DBTX) TripRepository {
	return TripRepository{DB: q}
}

func (s *Store) requests(q DBTX) JoinRequestRepository {
	return JoinRequestRepository{DB: q}
}

func (s *Store) InsertTrip(ctx context.Context, trip models.Trip) error {
	return s.trips(s.DB).Insert(ctx, trip)
}

func (s *Store) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	return s.trips(s.DB).GetByID(ctx, id)
}

// ListTrips reads trips and their requests from one read-only transaction so
// a listing never mixes seat counts and request statuses from different
// commits.
func (s *Store) ListTrips(ctx context.Context, filter models.TripFilter) (out []models.TripListing, err error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	trips, err := s.trips(tx).List(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(trips))
	for _, t := range trips {
		ids = append(ids, t.ID)
	}
	byTrip, err := s.requests(tx).ListByTrips(ctx, ids)
	if err != nil {
		return nil, err
	}

	out = make([]models.TripListing, 0, len(trips))
	for _, t := range trips {
		reqs := byTrip[t.ID]
		summaries := make([]models.RequestSummary, 0, len(reqs))
		for _, r := range reqs {
			summaries = append(summaries, r.Summary())
		}
		out = append(out, models.TripListing{Trip: t, Requests: summaries})
	}
	return out, nil
}

func (s *Store) ListRequests(ctx context.Context, tripID string) ([]models.JoinRequest, error) {
	return s.requests(s.DB).ListByTrip(ctx, tripID)
}

// GetTripWithRequests uses a read-only transaction for the same reason as
// ListTrips.
func (s *Store) GetTripWithRequests(ctx context.Context, id string) (trip models.Trip, reqs []models.JoinRequest, err error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return models.Trip{}, nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	trip, err = s.trips(tx).GetByID(ctx, id)
	if err != nil {
		return models.Trip{}, nil, err
	}
	reqs, err = s.requests(tx).ListByTrip(ctx, id)
	if err != nil {
		return models.Trip{}, nil, err
	}
	return trip, reqs, nil
}

func (s *Store) WithTrip(ctx context.Context, tripID string, fn func(tx TripTx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()

	trip, err := s.trips(tx).GetForUpdate(ctx, tripID)
	if err != nil {
		return err
	}
	return fn(&sqlTripTx{trip: trip, trips: s.trips(tx), requests: s.requests(tx)})
}

func (s *Store) AppendMessage(ctx context.Context, msg models.ChatMessage) error {
	return ChatMessageRepository{DB: s.DB}.Append(ctx, msg)
}

func (s *Store) ListMessages(ctx context.Context, tripID string) ([]models.ChatMessage, error) {
	return ChatMessageRepository{DB: s.DB}.ListByTrip(ctx, tripID)
}

func (s *Store) LastMessageAt(ctx context.Context, tripID string) (time.Time, error) {
	return ChatMessageRepository{DB: s.DB}.LastCreatedAt(ctx, tripID)
}

func (s *Store) ListCities(ctx context.Context) ([]models.City, error) {
	return CityRepository{DB: s.DB}.List(ctx)
}

type sqlTripTx struct {
	trip     models.Trip
	trips    TripRepository
	requests JoinRequestRepository
}

func (t *sqlTripTx) Trip() models.Trip { return t.trip }

func (t *sqlTripTx) FindLiveRequest(ctx context.Context, userID string) (models.JoinRequest, bool, error) {
	return t.requests.FindLive(ctx, t.trip.ID, userID)
}

func (t *sqlTripTx) InsertRequest(ctx context.Context, req models.JoinRequest) error {
	return t.requests.Insert(ctx, req)
}

func (t *sqlTripTx) GetRequest(ctx context.Context, requestID string) (models.JoinRequest, error) {
	return t.requests.GetByID(ctx, requestID)
}

func (t *sqlTripTx) MarkRequest(ctx context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error) {
	return t.requests.UpdateStatus(ctx, requestID, from, to, at)
}

func (t *sqlTripTx) TakeSeat(ctx context.Context) (bool, error) {
	ok, err := t.trips.IncrementSeatsTaken(ctx, t.trip.ID)
	if err != nil || !ok {
		return ok, err
	}
	t.trip.SeatsTaken++
	return true, nil
}
