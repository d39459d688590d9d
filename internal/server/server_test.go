package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
	"github.com/verte-zerg/tuirace/internal/room"
)

type words []string

func (w words) Load(model.Mode) []string {
	return append([]string(nil), w...)
}

func startTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	mem := room.NewMemoryStore()
	srv := New(cfg, room.Config{
		KV:    mem.Room,
		Words: words{"one", "two", "three"},
		Gen:   generator.NewSeeded(3),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func wsURL(ts *httptest.Server, code string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/" + code
}

func dial(t *testing.T, ts *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, code), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			// Already closed by the test.
			_ = err
		}
	})
	return conn
}

func write(t *testing.T, conn *websocket.Conn, typ protocol.Type, playerID string, data any) {
	t.Helper()
	frame, err := protocol.Encode(typ, playerID, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.Type) protocol.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
}

func TestRaceOverWebsocket(t *testing.T) {
	_, ts := startTestServer(t, DefaultConfig())

	host := dial(t, ts, "abc123")
	connected := readUntil(t, host, protocol.TypeConnected)
	data, _ := protocol.DecodeData[protocol.ConnectedData](connected)
	if data.ID == "" || data.RoomExists {
		t.Fatalf("unexpected connected payload: %+v", data)
	}

	write(t, host, protocol.TypeCreate, "p1", protocol.CreateData{TimeLimit: 20})
	created, _ := protocol.DecodeData[protocol.RoomCreatedData](readUntil(t, host, protocol.TypeRoomCreated))
	if created.RoomCode != "ABC123" {
		t.Fatalf("unexpected room code %q", created.RoomCode)
	}
	write(t, host, protocol.TypeJoin, "p1", protocol.JoinData{Username: "alice"})
	readUntil(t, host, protocol.TypePlayersUpdate)

	guest := dial(t, ts, "ABC123")
	readUntil(t, guest, protocol.TypeConnected)
	write(t, guest, protocol.TypeJoin, "p2", protocol.JoinData{Username: "bob"})
	roster, _ := protocol.DecodeData[protocol.PlayersData](readUntil(t, guest, protocol.TypePlayersUpdate))
	if len(roster.Players) != 2 {
		t.Fatalf("expected two players, got %+v", roster.Players)
	}

	write(t, host, protocol.TypeStart, "p1", nil)
	start, _ := protocol.DecodeData[protocol.RaceStartData](readUntil(t, guest, protocol.TypeRaceStart))
	if len(start.WordList) != 3 || start.TimeLimit != 20 {
		t.Fatalf("unexpected race-start: %+v", start)
	}

	write(t, host, protocol.TypeFinish, "p1", protocol.FinishData{Results: model.Results{WPM: 40, Accuracy: 98}})
	write(t, guest, protocol.TypeFinish, "p2", protocol.FinishData{Results: model.Results{WPM: 55, Accuracy: 90}})
	finished, _ := protocol.DecodeData[protocol.RaceFinishedData](readUntil(t, host, protocol.TypeRaceFinished))
	if len(finished.Players) != 2 || finished.Players[0].ID != "p2" {
		t.Fatalf("unexpected ranking: %+v", finished.Players)
	}
}

func TestInvalidRoomCode(t *testing.T) {
	_, ts := startTestServer(t, DefaultConfig())
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "nope"), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestRejectsForeignOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://race.example"}
	_, ts := startTestServer(t, cfg)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "ABC123"), header); err == nil {
		t.Fatalf("expected foreign origin to be rejected")
	}
	header.Set("Origin", "https://race.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "ABC123"), header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, protocol.TypeConnected)
}

func TestHealth(t *testing.T) {
	srv, ts := startTestServer(t, DefaultConfig())
	conn := dial(t, ts, "ROOM01")
	readUntil(t, conn, protocol.TypeConnected)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var body health
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Rooms != 1 || body.Connections != 1 {
		t.Fatalf("unexpected health: %+v", body)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for srv.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
