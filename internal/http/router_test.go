package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sharedtrips/internal/chat"
	intconfig "sharedtrips/internal/config"
	h "sharedtrips/internal/http/handlers"
	"sharedtrips/internal/http/ws"
	"sharedtrips/internal/repositories/memory"
	"sharedtrips/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	router *gin.Engine
	hub    *chat.Hub
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	store := memory.New()
	res := services.NewReservationService(store)
	hub := chat.NewHub(store, res, chat.Options{QueueSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		hub.Close()
	})

	env := intconfig.Env{CORSAllowedOrigins: "*"}
	handlers := &h.Handlers{Reservations: res, Chat: hub, Cities: store}
	sockets := ws.NewController(ctx, hub, ws.Options{PongWait: 5 * time.Second, WriteWait: time.Second})
	return testApp{router: NewRouter(env, handlers, sockets), hub: hub}
}

func (a testApp) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return w, out
}

func (a testApp) createTrip(t *testing.T, seats int) string {
	t.Helper()
	body := `{"from":"Sofia","to":"Varna","date":"2025-07-01","time":"08:00","driver":"Ivan","seatsTotal":` + itoa(seats) + `}`
	w, out := a.do(t, http.MethodPost, "/api/trips", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create trip: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("create trip: missing id in %s", w.Body.String())
	}
	return id
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHealthAndCities(t *testing.T) {
	app := newTestApp(t)

	w, out := app.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}

	w, _ = app.do(t, http.MethodGet, "/api/cities", "")
	var cities []struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cities); err != nil {
		t.Fatalf("decode cities: %v", err)
	}
	if len(cities) != 4 || cities[0].Name != "Burgas" || cities[3].Name != "Varna" {
		t.Fatalf("unexpected cities: %+v", cities)
	}
}

func TestCreateTripValidation(t *testing.T) {
	app := newTestApp(t)

	w, out := app.do(t, http.MethodPost, "/api/trips", `{"from":"Sofia","to":"Varna","date":"2025-07-01","time":"08:00","seatsTotal":2}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if out["code"] != "validation_error" || out["error"] == "" || out["request_id"] == "" {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}

	w, _ = app.do(t, http.MethodPost, "/api/trips", `{"seatsTotal":"two"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payload, got %d", w.Code)
	}
	w, _ = app.do(t, http.MethodPost, "/api/trips", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestReservationFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	tripID := app.createTrip(t, 2)

	requestIDs := map[string]string{}
	for _, u := range []string{"A", "B", "C"} {
		w, out := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/request", `{"userId":"`+u+`"}`)
		if w.Code != http.StatusCreated || out["status"] != "PENDING" {
			t.Fatalf("submit %s: %d %s", u, w.Code, w.Body.String())
		}
		requestIDs[u], _ = out["requestId"].(string)
	}

	w, out := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/request", `{"userId":"A"}`)
	if w.Code != http.StatusConflict || out["code"] != "conflict" {
		t.Fatalf("duplicate submit: expected 409 conflict, got %d %s", w.Code, w.Body.String())
	}

	decide := func(user, action string) (*httptest.ResponseRecorder, map[string]any) {
		return app.do(t, http.MethodPost, "/api/trips/"+tripID+"/requests/"+requestIDs[user]+"/"+action, "")
	}
	if w, _ := decide("A", "approve"); w.Code != http.StatusOK {
		t.Fatalf("approve A: %d %s", w.Code, w.Body.String())
	}
	if w, _ := decide("B", "approve"); w.Code != http.StatusOK {
		t.Fatalf("approve B: %d %s", w.Code, w.Body.String())
	}
	w, out = decide("C", "approve")
	if w.Code != http.StatusConflict || out["code"] != "capacity_exceeded" {
		t.Fatalf("approve C: expected 409 capacity_exceeded, got %d %s", w.Code, w.Body.String())
	}
	if w, out := decide("A", "decline"); w.Code != http.StatusConflict || out["code"] != "conflict" {
		t.Fatalf("re-decide A: expected 409 conflict, got %d %s", w.Code, w.Body.String())
	}
	if w, _ := decide("C", "maybe"); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: expected 400, got %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/requests/nope/approve", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown request: expected 404, got %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodPost, "/api/trips/nope/request", `{"userId":"Z"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown trip: expected 404, got %d", w.Code)
	}

	w, _ = app.do(t, http.MethodGet, "/api/trips?from=Sofia&date=2025-07-01", "")
	var listing []struct {
		ID         string `json:"id"`
		SeatsTotal int    `json:"seatsTotal"`
		SeatsTaken int    `json:"seatsTaken"`
		Requests   []struct {
			ID     string `json:"id"`
			UserID string `json:"userId"`
			Status string `json:"status"`
		} `json:"requests"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing) != 1 || listing[0].SeatsTaken != 2 || len(listing[0].Requests) != 3 {
		t.Fatalf("unexpected listing: %s", w.Body.String())
	}
	for _, r := range listing[0].Requests {
		if r.UserID == "C" && r.Status != "PENDING" {
			t.Fatalf("C should still be PENDING, got %s", r.Status)
		}
	}

	w, _ = app.do(t, http.MethodGet, "/api/trips?to=Burgas", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}

	w, out = app.do(t, http.MethodGet, "/api/trips/"+tripID, "")
	if w.Code != http.StatusOK || out["seatsTaken"].(float64) != 2 {
		t.Fatalf("get trip: %d %s", w.Code, w.Body.String())
	}
}

func TestChatOverHTTP(t *testing.T) {
	app := newTestApp(t)
	tripID := app.createTrip(t, 3)

	for _, text := range []string{"hi", "there"} {
		w, out := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/chat", `{"userId":"u1","text":"`+text+`"}`)
		if w.Code != http.StatusCreated || out["id"] == "" || out["userName"] != "User" {
			t.Fatalf("post %q: %d %s", text, w.Code, w.Body.String())
		}
	}
	if w, _ := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/chat", `{"text":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text: expected 400, got %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodPost, "/api/trips/unknown/chat", `{"text":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown trip: expected 404, got %d", w.Code)
	}

	w, _ := app.do(t, http.MethodGet, "/api/trips/"+tripID+"/chat", "")
	var history []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 || history[0].Text != "hi" || history[1].Text != "there" {
		t.Fatalf("unexpected history: %s", w.Body.String())
	}
}

func TestTripManifestPDF(t *testing.T) {
	app := newTestApp(t)
	tripID := app.createTrip(t, 2)

	w, _ := app.do(t, http.MethodGet, "/api/trips/"+tripID+"/manifest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "MANIFEST_2025-07-01_Sofia_Varna.pdf") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}

	if w, _ := app.do(t, http.MethodGet, "/api/trips/missing/manifest", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out ws.Outbound
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return out
}

func TestWebsocketRoundTrip(t *testing.T) {
	app := newTestApp(t)
	tripID := app.createTrip(t, 2)

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.Inbound{Type: ws.TypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if f := readFrame(t, conn); f.Type != ws.TypePong {
		t.Fatalf("expected pong, got %+v", f)
	}

	conn.WriteJSON(ws.Inbound{Type: ws.TypeJoin, TripID: tripID})
	if f := readFrame(t, conn); f.Type != ws.TypeJoined || f.TripID != tripID {
		t.Fatalf("expected chat:joined, got %+v", f)
	}

	if w, _ := app.do(t, http.MethodPost, "/api/trips/"+tripID+"/chat", `{"userId":"u1","userName":"Ana","text":"from http"}`); w.Code != http.StatusCreated {
		t.Fatalf("post: %d", w.Code)
	}
	f := readFrame(t, conn)
	if f.Type != ws.TypeNew || f.Message == nil || f.Message.Text != "from http" || f.Message.UserName != "Ana" {
		t.Fatalf("expected chat:new from http, got %+v", f)
	}

	conn.WriteJSON(ws.Inbound{Type: ws.TypePost, TripID: tripID, UserID: "u2", UserName: "Bo", Text: "from socket"})
	if f := readFrame(t, conn); f.Type != ws.TypeNew || f.Message.Text != "from socket" {
		t.Fatalf("expected chat:new from socket, got %+v", f)
	}

	conn.WriteJSON(ws.Inbound{Type: ws.TypePost, TripID: tripID, Text: " "})
	if f := readFrame(t, conn); f.Type != ws.TypeError || f.Code != "validation_error" {
		t.Fatalf("expected validation error frame, got %+v", f)
	}

	w, _ := app.do(t, http.MethodGet, "/api/rooms", "")
	if !strings.Contains(w.Body.String(), `"subscribers":1`) {
		t.Fatalf("expected one subscriber, got %s", w.Body.String())
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for len(app.hub.Rooms()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("room not released after disconnect: %+v", app.hub.Rooms())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketLeaveStopsDelivery(t *testing.T) {
	app := newTestApp(t)
	tripID := app.createTrip(t, 2)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(ws.Inbound{Type: ws.TypeJoin, TripID: tripID})
	readFrame(t, conn)
	conn.WriteJSON(ws.Inbound{Type: ws.TypeLeave, TripID: tripID})
	if f := readFrame(t, conn); f.Type != ws.TypeLeft {
		t.Fatalf("expected chat:left, got %+v", f)
	}

	app.do(t, http.MethodPost, "/api/trips/"+tripID+"/chat", `{"text":"nobody listens"}`)
	conn.WriteJSON(ws.Inbound{Type: ws.TypePing})
	if f := readFrame(t, conn); f.Type != ws.TypePong {
		t.Fatalf("expected pong and no chat:new after leave, got %+v", f)
	}
}
