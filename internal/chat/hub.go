// Package chat keeps the per-trip chat rooms: it appends messages to the
// chat log and fans them out to the subscribers of the trip's room.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sharedtrips/internal/domain"
	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/repositories"
	"sharedtrips/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("chat: hub closed")

// TripLookup resolves a trip id, returning domain.NotFoundError for unknown
// trips.
type TripLookup interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
}

type Options struct {
	// QueueSize is the per-subscriber buffer. A subscriber whose buffer is
	// full when a message arrives is evicted.
	QueueSize int
	// RateLimit messages per RateWindow for one author in one room.
	RateLimit  int
	RateWindow time.Duration
	// Clock defaults to utils.NowUTC.
	Clock func() time.Time
}

const DefaultQueueSize = 64

// RoomInfo describes a live room.
type RoomInfo struct {
	TripID      string `json:"tripId"`
	Subscribers int    `json:"subscribers"`
}

// Hub owns the live rooms. Lock order is room.mu before Hub.mu; h.mu is
// never held while waiting for a room.
type Hub struct {
	log     repositories.ChatLog
	trips   TripLookup
	limiter *RateLimiter
	clock   func() time.Time
	queue   int

	mu     sync.RWMutex
	rooms  map[string]*room
	joined map[string]map[string]struct{} // subscriber id -> trip ids
	closed bool
}

type room struct {
	tripID string
	size   atomic.Int32

	// mu orders append and enqueue so every subscriber sees the log order.
	mu     sync.Mutex
	subs   map[string]*Subscription
	last   time.Time
	loaded bool
	dead   bool
}

func NewHub(chatLog repositories.ChatLog, trips TripLookup, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = utils.NowUTC
	}
	return &Hub{
		log:     chatLog,
		trips:   trips,
		limiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
		clock:   opts.Clock,
		queue:   opts.QueueSize,
		rooms:   make(map[string]*room),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join subscribes subscriberID to the trip's room. Joining twice returns the
// existing subscription and keeps its first SendFunc.
func (h *Hub) Join(tripID, subscriberID string, send SendFunc) (*Subscription, error) {
	return h.JoinNotify(tripID, subscriberID, send, nil)
}

// JoinNotify is Join with a hook that runs while the room is locked, on new
// and repeated joins alike. Anything the hook sends reaches the subscriber
// before any message posted after the join.
func (h *Hub) JoinNotify(tripID, subscriberID string, send SendFunc, joined func(*Subscription)) (*Subscription, error) {
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return nil, domain.ValidationError{Field: "tripId", Msg: "required"}
	}
	if subscriberID == "" || send == nil {
		return nil, domain.ValidationError{Field: "subscriber", Msg: "required"}
	}

	r, err := h.acquire(tripID)
	if err != nil {
		return nil, err
	}
	defer h.unlock(r)

	sub, ok := r.subs[subscriberID]
	if !ok {
		sub = newSubscription(h, tripID, subscriberID, send, h.queue)
		r.subs[subscriberID] = sub
		r.size.Store(int32(len(r.subs)))
		h.track(subscriberID, tripID)
		log.Debug().Str("module", "chat").Str("trip", tripID).Str("subscriber", subscriberID).
			Int("subscribers", len(r.subs)).Msg("joined room")
	}
	if joined != nil {
		joined(sub)
	}
	return sub, nil
}

// Leave removes the subscriber from the room. Unknown rooms and subscribers
// are ignored.
func (h *Hub) Leave(tripID, subscriberID string) {
	h.leave(strings.TrimSpace(tripID), subscriberID, nil)
}

// LeaveAll removes the subscriber from every room it is in and returns the
// trip ids it left.
func (h *Hub) LeaveAll(subscriberID string) []string {
	h.mu.RLock()
	rooms := make([]*room, 0, len(h.joined[subscriberID]))
	for id := range h.joined[subscriberID] {
		if r, ok := h.rooms[id]; ok {
			rooms = append(rooms, r)
		}
	}
	h.mu.RUnlock()

	var left []string
	for _, r := range rooms {
		r.mu.Lock()
		if sub := h.detachLocked(r, subscriberID, nil); sub != nil {
			sub.stop(nil)
			left = append(left, r.tripID)
		}
		h.unlock(r)
	}
	sort.Strings(left)
	return left
}

// leave removes subscriberID from the room. When only is set, the entry is
// removed only if it is that exact subscription.
func (h *Hub) leave(tripID, subscriberID string, only *Subscription) {
	h.removeSub(tripID, subscriberID, only, nil)
}

func (h *Hub) evict(sub *Subscription, reason error) {
	h.removeSub(sub.tripID, sub.subscriberID, sub, reason)
}

func (h *Hub) removeSub(tripID, subscriberID string, only *Subscription, reason error) {
	if only != nil {
		defer only.stop(reason)
	}
	h.mu.RLock()
	r, ok := h.rooms[tripID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer h.unlock(r)
	if sub := h.detachLocked(r, subscriberID, only); sub != nil {
		sub.stop(reason)
		log.Debug().Str("module", "chat").Str("trip", tripID).Str("subscriber", subscriberID).Msg("left room")
	}
}

// detachLocked needs r.mu held. It returns the removed subscription, or nil
// when there was nothing to remove.
func (h *Hub) detachLocked(r *room, subscriberID string, only *Subscription) *Subscription {
	if r.dead {
		return nil
	}
	sub, ok := r.subs[subscriberID]
	if !ok || (only != nil && sub != only) {
		return nil
	}
	delete(r.subs, subscriberID)
	r.size.Store(int32(len(r.subs)))
	h.untrack(subscriberID, r.tripID)
	return sub
}

func (h *Hub) track(subscriberID, tripID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	set, ok := h.joined[subscriberID]
	if !ok {
		set = make(map[string]struct{})
		h.joined[subscriberID] = set
	}
	set[tripID] = struct{}{}
}

func (h *Hub) untrack(subscriberID, tripID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.joined[subscriberID]; ok {
		delete(set, tripID)
		if len(set) == 0 {
			delete(h.joined, subscriberID)
		}
	}
}

// acquire returns the live room for tripID with r.mu held.
func (h *Hub) acquire(tripID string) (*room, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrHubClosed
		}
		r, ok := h.rooms[tripID]
		if !ok {
			r = &room{tripID: tripID, subs: make(map[string]*Subscription)}
			h.rooms[tripID] = r
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.dead {
			return r, nil
		}
		r.mu.Unlock()
	}
}

// unlock releases r.mu, retiring the room first once nobody is subscribed.
func (h *Hub) unlock(r *room) {
	if len(r.subs) == 0 && !r.dead {
		r.dead = true
		h.mu.Lock()
		if h.rooms[r.tripID] == r {
			delete(h.rooms, r.tripID)
		}
		h.mu.Unlock()
	}
	r.mu.Unlock()
}

// Post appends a message to the trip's chat log and hands it to every
// current subscriber of the room. Nothing is delivered when the append
// fails. Delivery problems evict the affected subscriber and never fail the
// call.
func (h *Hub) Post(ctx context.Context, tripID, userID, userName, text string) (models.ChatMessage, error) {
	tripID = strings.TrimSpace(tripID)
	userID = strings.TrimSpace(userID)
	userName = utils.NormalizeSpace(userName)
	text = strings.TrimSpace(text)
	if tripID == "" {
		return models.ChatMessage{}, domain.ValidationError{Field: "tripId", Msg: "required"}
	}
	if text == "" {
		return models.ChatMessage{}, domain.ValidationError{Field: "text", Msg: "required"}
	}
	if userName == "" {
		userName = models.DefaultUserName
	}
	if _, err := h.trips.GetTrip(ctx, tripID); err != nil {
		return models.ChatMessage{}, err
	}

	author := userID
	if author == "" {
		author = "name:" + userName
	}
	key := tripID + "|" + author
	if !h.limiter.Allow(key) {
		log.Warn().Str("module", "chat").Str("trip", tripID).Str("author", author).Msg("chat rate limit hit")
		return models.ChatMessage{}, domain.RateLimitError{Msg: "too many messages, slow down"}
	}

	r, err := h.acquire(tripID)
	if err != nil {
		h.limiter.Refund(key)
		return models.ChatMessage{}, err
	}
	msg, evicted, err := h.appendAndFanOut(ctx, r, models.ChatMessage{
		ID:       uuid.NewString(),
		TripID:   tripID,
		UserID:   userID,
		UserName: userName,
		Text:     text,
	})
	h.unlock(r)
	if err != nil {
		h.limiter.Refund(key)
		return models.ChatMessage{}, err
	}

	for _, sub := range evicted {
		log.Warn().Str("module", "chat").Str("trip", tripID).Str("subscriber", sub.subscriberID).
			Msg("subscriber queue full, evicting")
	}
	return msg, nil
}

// appendAndFanOut needs r.mu held.
func (h *Hub) appendAndFanOut(ctx context.Context, r *room, msg models.ChatMessage) (models.ChatMessage, []*Subscription, error) {
	if !r.loaded {
		last, err := h.log.LastMessageAt(ctx, r.tripID)
		if err != nil {
			return msg, nil, domain.InternalError{Msg: "failed to read chat log", Err: err}
		}
		if last.After(r.last) {
			r.last = last
		}
		r.loaded = true
	}

	ts := h.clock()
	if ts.Before(r.last) {
		ts = r.last
	}
	msg.CreatedAt = ts
	if err := h.log.AppendMessage(ctx, msg); err != nil {
		return msg, nil, domain.InternalError{Msg: "failed to save chat message", Err: err}
	}
	r.last = ts

	var evicted []*Subscription
	for id, sub := range r.subs {
		if sub.enqueue(msg) {
			continue
		}
		h.detachLocked(r, id, sub)
		sub.stop(ErrBackpressure)
		evicted = append(evicted, sub)
	}
	return msg, evicted, nil
}

// History returns the trip's messages oldest first.
func (h *Hub) History(ctx context.Context, tripID string) ([]models.ChatMessage, error) {
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return nil, domain.ValidationError{Field: "tripId", Msg: "required"}
	}
	if _, err := h.trips.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	msgs, err := h.log.ListMessages(ctx, tripID)
	if err != nil {
		return nil, domain.InternalError{Msg: "failed to read chat log", Err: err}
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

// Rooms lists the live rooms ordered by trip id. Counts are read without
// locking the rooms and may lag a concurrent join or leave.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		if n := int(r.size.Load()); n > 0 {
			out = append(out, RoomInfo{TripID: id, Subscribers: n})
		}
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out
}

// Close stops every subscription. Later Join and Post calls fail with
// ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.joined = make(map[string]map[string]struct{})
	h.mu.Unlock()

	n := 0
	for _, r := range rooms {
		r.mu.Lock()
		for _, sub := range r.subs {
			sub.stop(ErrHubClosed)
			n++
		}
		r.subs = map[string]*Subscription{}
		r.size.Store(0)
		r.dead = true
		r.mu.Unlock()
	}
	log.Info().Str("module", "chat").Int("subscriptions", n).Msg("hub closed")
}
