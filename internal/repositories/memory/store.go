// Package memory is an in-process implementation of the repository
// contracts. It keeps nothing across restarts and is meant for local runs
// and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/repositories"
	"sharedtrips/internal/utils"
)

type Store struct {
	mu       sync.RWMutex
	trips    map[string]models.Trip
	requests map[string]models.JoinRequest
	byTrip   map[string][]string
	messages map[string][]models.ChatMessage
	cities   []models.City

	tripLocks *utils.KeyedMutex
}

var (
	_ repositories.ReservationStore = (*Store)(nil)
	_ repositories.ChatLog          = (*Store)(nil)
	_ repositories.CityDirectory    = (*Store)(nil)
)

func New() *Store {
	cities := make([]models.City, len(repositories.DefaultCities))
	copy(cities, repositories.DefaultCities)
	sort.Slice(cities, func(i, j int) bool { return cities[i].Name < cities[j].Name })
	return &Store{
		trips:     make(map[string]models.Trip),
		requests:  make(map[string]models.JoinRequest),
		byTrip:    make(map[string][]string),
		messages:  make(map[string][]models.ChatMessage),
		cities:    cities,
		tripLocks: utils.NewKeyedMutex(),
	}
}

func (s *Store) InsertTrip(_ context.Context, trip models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = trip
	return nil
}

func (s *Store) GetTrip(_ context.Context, id string) (models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return models.Trip{}, repositories.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTrips(_ context.Context, f models.TripFilter) ([]models.TripListing, error) {
	from, to, date := strings.TrimSpace(f.From), strings.TrimSpace(f.To), strings.TrimSpace(f.Date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.TripListing{}
	for _, t := range s.trips {
		if (from != "" && t.From != from) || (to != "" && t.To != to) || (date != "" && t.Date != date) {
			continue
		}
		ids := s.byTrip[t.ID]
		reqs := make([]models.RequestSummary, 0, len(ids))
		for _, id := range ids {
			reqs = append(reqs, s.requests[id].Summary())
		}
		out = append(out, models.TripListing{Trip: t, Requests: reqs})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Store) ListRequests(_ context.Context, tripID string) ([]models.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTrip[tripID]
	out := make([]models.JoinRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.requests[id])
	}
	return out, nil
}

func (s *Store) GetTripWithRequests(_ context.Context, id string) (models.Trip, []models.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return models.Trip{}, nil, repositories.ErrNotFound
	}
	ids := s.byTrip[id]
	reqs := make([]models.JoinRequest, 0, len(ids))
	for _, rid := range ids {
		reqs = append(reqs, s.requests[rid])
	}
	return t, reqs, nil
}

// WithTrip stages every write of fn and applies them together only when fn
// succeeds, which gives the same all-or-nothing result as a SQL transaction.
func (s *Store) WithTrip(ctx context.Context, tripID string, fn func(tx repositories.TripTx) error) error {
	unlock := s.tripLocks.Lock(tripID)
	defer unlock()

	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	tx := &memTx{store: s, trip: trip, status: make(map[string]statusChange)}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.seatsTaken > 0 {
		t := s.trips[tx.trip.ID]
		t.SeatsTaken += tx.seatsTaken
		s.trips[t.ID] = t
	}
	for _, req := range tx.inserted {
		s.requests[req.ID] = req
		s.byTrip[req.TripID] = append(s.byTrip[req.TripID], req.ID)
	}
	for id, ch := range tx.status {
		req := s.requests[id]
		req.Status = ch.to
		req.UpdatedAt = ch.at
		s.requests[id] = req
	}
}

func (s *Store) AppendMessage(_ context.Context, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.TripID] = append(s.messages[msg.TripID], msg)
	return nil
}

func (s *Store) ListMessages(_ context.Context, tripID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	out := make([]models.ChatMessage, len(s.messages[tripID]))
	copy(out, s.messages[tripID])
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) LastMessageAt(_ context.Context, tripID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for _, m := range s.messages[tripID] {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return last, nil
}

func (s *Store) ListCities(_ context.Context) ([]models.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.City, len(s.cities))
	copy(out, s.cities)
	return out, nil
}

type statusChange struct {
	to models.RequestStatus
	at time.Time
}

type memTx struct {
	store      *Store
	trip       models.Trip
	seatsTaken int
	inserted   []models.JoinRequest
	status     map[string]statusChange
}

func (t *memTx) Trip() models.Trip { return t.trip }

// view returns the request as this transaction sees it: staged inserts and
// status changes win over committed state.
func (t *memTx) view(id string) (models.JoinRequest, bool) {
	for _, req := range t.inserted {
		if req.ID == id {
			return t.overlay(req), true
		}
	}
	t.store.mu.RLock()
	req, ok := t.store.requests[id]
	t.store.mu.RUnlock()
	if !ok {
		return models.JoinRequest{}, false
	}
	return t.overlay(req), true
}

func (t *memTx) overlay(req models.JoinRequest) models.JoinRequest {
	if ch, ok := t.status[req.ID]; ok {
		req.Status = ch.to
		req.UpdatedAt = ch.at
	}
	return req
}

func (t *memTx) FindLiveRequest(_ context.Context, userID string) (models.JoinRequest, bool, error) {
	t.store.mu.RLock()
	ids := append([]string(nil), t.store.byTrip[t.trip.ID]...)
	t.store.mu.RUnlock()
	for _, req := range t.inserted {
		ids = append(ids, req.ID)
	}
	for _, id := range ids {
		req, ok := t.view(id)
		if ok && req.UserID == userID && req.Status.Live() {
			return req, true, nil
		}
	}
	return models.JoinRequest{}, false, nil
}

func (t *memTx) InsertRequest(_ context.Context, req models.JoinRequest) error {
	t.inserted = append(t.inserted, req)
	return nil
}

func (t *memTx) GetRequest(_ context.Context, requestID string) (models.JoinRequest, error) {
	req, ok := t.view(requestID)
	if !ok {
		return models.JoinRequest{}, repositories.ErrNotFound
	}
	return req, nil
}

func (t *memTx) MarkRequest(_ context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error) {
	req, ok := t.view(requestID)
	if !ok || req.Status != from {
		return false, nil
	}
	t.status[requestID] = statusChange{to: to, at: at}
	return true, nil
}

func (t *memTx) TakeSeat(_ context.Context) (bool, error) {
	if t.trip.SeatsTaken >= t.trip.SeatsTotal {
		return false, nil
	}
	t.trip.SeatsTaken++
	t.seatsTaken++
	return true, nil
}
