package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/dashboard"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
	wsHub "github.com/pilotwatch/pilotwatch/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// fakeSource is a Source whose state can be swapped while the hub runs.
type fakeSource struct {
	mu sync.Mutex
	st dashboard.State
}

func newSource(pilots ...string) *fakeSource {
	src := &fakeSource{}
	src.setPilots(pilots...)
	return src
}

func (f *fakeSource) State() dashboard.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeSource) setPilots(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = dashboard.State{
		Mission: types.MissionSession{MissionID: "m-1", State: types.SessionInProgress, ActivePilots: []types.PilotSession{}},
		Pilots:  make([]types.Pilot, 0, len(ids)),
	}
	for _, id := range ids {
		f.st.Pilots = append(f.st.Pilots, types.Pilot{ID: id, Status: types.StatusActive})
	}
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, src wsHub.Source, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(src, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one envelope from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func pilotCount(t *testing.T, m map[string]interface{}) int {
	t.Helper()
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	pilots, ok := data["pilots"].([]interface{})
	if !ok {
		t.Fatal("pilots: missing or wrong type")
	}
	return len(pilots)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	wsURL, _, _ := startHub(t, newSource("P001", "P002"), time.Hour)

	m := readMessage(t, dial(t, wsURL))
	if m["event"] != wsHub.EventSnapshot {
		t.Errorf("event: got %v, want snapshot", m["event"])
	}
	if n := pilotCount(t, m); n != 2 {
		t.Errorf("pilots: got %d, want 2", n)
	}
	data := m["data"].(map[string]interface{})
	mission := data["mission"].(map[string]interface{})
	if mission["mission_id"] != "m-1" {
		t.Errorf("mission_id: got %v, want m-1", mission["mission_id"])
	}
	if _, ok := data["danger"]; !ok {
		t.Error("danger: missing")
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newSource(), time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i]) // consume initial message
	}
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := newSource()
	wsURL, _, _ := startHub(t, src, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate snapshot, no pilots

	src.setPilots("P003")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pilotCount(t, readMessage(t, conn)) == 1 {
			return
		}
	}
	t.Fatal("tick broadcast never carried the new pilot")
}

func TestHub_HandleForwardsEventThenSnapshot(t *testing.T) {
	src := newSource("P001")
	wsURL, hub, _ := startHub(t, src, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	hub.Handle(events.Event{
		Type:    events.VitalsRecorded,
		PilotID: "P001",
		Data:    types.VitalsSnapshot{HeartRate: 190},
	})

	m := readMessage(t, conn)
	if m["event"] != string(events.VitalsRecorded) {
		t.Fatalf("event: got %v, want vitals.recorded", m["event"])
	}
	data := m["data"].(map[string]interface{})
	if data["pilot_id"] != "P001" {
		t.Errorf("pilot_id: got %v, want P001", data["pilot_id"])
	}
	payload := data["data"].(map[string]interface{})
	if payload["heart_rate"] != float64(190) {
		t.Errorf("heart_rate: got %v, want 190", payload["heart_rate"])
	}

	// The event schedules a state push even though the tick is an hour away.
	if m := readMessage(t, conn); m["event"] != wsHub.EventSnapshot {
		t.Errorf("follow-up event: got %v, want snapshot", m["event"])
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newSource(), testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newSource(), testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
