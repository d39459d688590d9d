package room

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
)

type wordsStub map[model.Mode][]string

func (w wordsStub) Load(mode model.Mode) []string {
	return append([]string(nil), w[mode]...)
}

type sent struct {
	conn string
	env  protocol.Envelope
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Send(connID string, frame []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.sent = append(r.sent, sent{conn: connID, env: env})
	r.mu.Unlock()
}

func (r *recorder) to(connID string, t protocol.Type) []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Envelope
	for _, s := range r.sent {
		if s.conn == connID && s.env.Type == t {
			out = append(out, s.env)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testRoom struct {
	t     *testing.T
	s     *Session
	rec   *recorder
	clock *clockwork.FakeClock
	kv    *MemoryKV
}

func newTestRoom(t *testing.T) *testRoom {
	t.Helper()
	return newTestRoomWithKV(t, NewMemoryKV())
}

func newTestRoomWithKV(t *testing.T, kv *MemoryKV) *testRoom {
	t.Helper()
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := NewSession("ABC123", Config{
		KV:     func(string) KV { return kv },
		Outbox: rec,
		Words: wordsStub{
			model.ModeWords:     {"alpha", "beta", "gamma", "delta"},
			model.ModeSentences: {"one two", "three four five"},
		},
		Gen:   generator.NewSeeded(7),
		Clock: clock,
	})
	s.load(context.Background())
	return &testRoom{t: t, s: s, rec: rec, clock: clock, kv: kv}
}

func (r *testRoom) connect(connID string) {
	r.s.handle(context.Background(), event{kind: eventConnect, connID: connID})
}

func (r *testRoom) disconnect(connID string) {
	r.s.handle(context.Background(), event{kind: eventDisconnect, connID: connID})
}

func (r *testRoom) msg(connID string, t protocol.Type, playerID string, data any) {
	r.t.Helper()
	frame, err := protocol.Encode(t, playerID, data)
	if err != nil {
		r.t.Fatalf("encode: %v", err)
	}
	r.raw(connID, frame)
}

func (r *testRoom) raw(connID string, frame []byte) {
	r.s.handle(context.Background(), event{kind: eventMessage, connID: connID, raw: frame})
}

func (r *testRoom) lastError(connID string) string {
	r.t.Helper()
	errs := r.rec.to(connID, protocol.TypeError)
	if len(errs) == 0 {
		return ""
	}
	data, err := protocol.DecodeData[protocol.ErrorData](errs[len(errs)-1])
	if err != nil {
		r.t.Fatalf("decode error: %v", err)
	}
	return data.Message
}

// setup creates the room as p1 and joins the named players, one second apart.
func (r *testRoom) setup(names ...string) {
	r.t.Helper()
	for i, name := range names {
		conn := "c" + name
		r.connect(conn)
		if i == 0 {
			r.msg(conn, protocol.TypeCreate, name, protocol.CreateData{Mode: "words", TimeLimit: 15})
		}
		r.msg(conn, protocol.TypeJoin, name, protocol.JoinData{Username: name})
		r.clock.Advance(time.Second)
	}
}

func TestConnectReportsRoomExistence(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	got := r.rec.to("c1", protocol.TypeConnected)
	if len(got) != 1 {
		t.Fatalf("expected one connected frame, got %d", len(got))
	}
	data, _ := protocol.DecodeData[protocol.ConnectedData](got[0])
	if data.ID != "c1" || data.RoomExists {
		t.Fatalf("unexpected connected data: %+v", data)
	}

	r.msg("c1", protocol.TypeCreate, "p1", nil)
	r.connect("c2")
	data, _ = protocol.DecodeData[protocol.ConnectedData](r.rec.to("c2", protocol.TypeConnected)[0])
	if !data.RoomExists {
		t.Fatalf("expected room to exist after create")
	}
}

func TestCreate(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	r.msg("c1", protocol.TypeCreate, "p1", protocol.CreateData{Mode: "Sentences", TimeLimit: 60})

	created := r.rec.to("c1", protocol.TypeRoomCreated)
	if len(created) != 1 {
		t.Fatalf("expected room-created reply")
	}
	data, _ := protocol.DecodeData[protocol.RoomCreatedData](created[0])
	if data.RoomCode != "ABC123" {
		t.Fatalf("unexpected code %q", data.RoomCode)
	}
	if r.s.state.Mode != model.ModeSentences || r.s.state.TimeLimitSeconds != 60 || r.s.state.HostID != "p1" {
		t.Fatalf("unexpected room: %+v", r.s.state)
	}
	raw, ok, _ := r.kv.Get(context.Background(), keyInitialized)
	if !ok || string(raw) != "true" {
		t.Fatalf("expected initialized to be persisted, got %s", raw)
	}
	raw, ok, _ = r.kv.Get(context.Background(), keyPlayers)
	if !ok || string(raw) != "[]" {
		t.Fatalf("expected empty roster to be persisted, got %s", raw)
	}

	r.connect("c2")
	r.msg("c2", protocol.TypeCreate, "p2", nil)
	if got := r.lastError("c2"); got != ErrRoomExists.Error() {
		t.Fatalf("expected %q, got %q", ErrRoomExists, got)
	}
	if r.s.state.HostID != "p1" {
		t.Fatalf("duplicate create changed the host")
	}
}

func TestCreateUnknownMode(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	r.msg("c1", protocol.TypeCreate, "p1", protocol.CreateData{Mode: "klingon"})
	if got := r.lastError("c1"); got != ErrUnknownMode.Error() {
		t.Fatalf("expected unknown mode, got %q", got)
	}
	if r.s.initialized {
		t.Fatalf("room must stay uninitialized")
	}
}

func TestJoinRequiresCreatedRoom(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	r.msg("c1", protocol.TypeJoin, "p1", protocol.JoinData{Username: "alice"})

	if got := r.lastError("c1"); got != "room does not exist" {
		t.Fatalf("expected join rejection, got %q", got)
	}
	if len(r.s.state.Players) != 0 {
		t.Fatalf("roster mutated: %+v", r.s.state.Players)
	}
	if _, ok, _ := r.kv.Get(context.Background(), keyPlayers); ok {
		t.Fatalf("rejected join must not persist a roster")
	}
	if len(r.rec.to("c1", protocol.TypePlayersUpdate)) != 0 {
		t.Fatalf("rejected join must not broadcast")
	}
}

func TestJoinRequiresUsername(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	r.connect("c2")
	r.msg("c2", protocol.TypeJoin, "p2", protocol.JoinData{Username: "   "})
	if got := r.lastError("c2"); got != "username required" {
		t.Fatalf("unexpected error %q", got)
	}
	if len(r.s.state.Players) != 1 {
		t.Fatalf("unexpected roster size %d", len(r.s.state.Players))
	}
}

func TestJoinBroadcastsRoster(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")

	updates := r.rec.to("cp1", protocol.TypePlayersUpdate)
	if len(updates) != 2 {
		t.Fatalf("expected two roster updates, got %d", len(updates))
	}
	data, _ := protocol.DecodeData[protocol.PlayersData](updates[1])
	if len(data.Players) != 2 || data.Players[0].ID != "p1" || data.Players[1].ID != "p2" {
		t.Fatalf("unexpected roster: %+v", data.Players)
	}
	if data.Players[0].Ready || data.Players[0].Progress != 0 {
		t.Fatalf("unexpected defaults: %+v", data.Players[0])
	}
	if len(r.rec.to("cp1", protocol.TypeSystem)) == 0 {
		t.Fatalf("expected join notice")
	}
}

func TestReconnectIdempotence(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	r.msg("cp1", protocol.TypeJoin, "p1", protocol.JoinData{Username: "p1"})
	r.connect("c-new")
	r.msg("c-new", protocol.TypeJoin, "p1", protocol.JoinData{Username: "p1"})
	r.msg("c-new", protocol.TypeJoin, "p1", protocol.JoinData{Username: "renamed"})

	if len(r.s.state.Players) != 1 {
		t.Fatalf("expected one player, got %d", len(r.s.state.Players))
	}
	if got := r.s.state.Players["p1"].Username; got != "renamed" {
		t.Fatalf("expected username update, got %q", got)
	}

	// The stale connection no longer owns the player.
	r.disconnect("cp1")
	if _, ok := r.s.state.Players["p1"]; !ok {
		t.Fatalf("closing the old connection removed the reconnected player")
	}
	r.disconnect("c-new")
	if len(r.s.state.Players) != 0 {
		t.Fatalf("expected empty roster")
	}
}

func TestSharedPlayerIDDoesNotMergePlayers(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	r.msg("c1", protocol.TypeCreate, "shared", protocol.CreateData{Mode: "words"})
	r.msg("c1", protocol.TypeJoin, "shared", protocol.JoinData{Username: "alice"})
	r.connect("c2")
	r.msg("c2", protocol.TypeJoin, "shared", protocol.JoinData{Username: "bob"})

	if got := r.lastError("c2"); got != ErrPlayerIDInUse.Error() {
		t.Fatalf("expected %q for second connection, got %q", ErrPlayerIDInUse, got)
	}
	if len(r.s.state.Players) != 1 || r.s.state.Players["shared"].Username != "alice" {
		t.Fatalf("expected alice to keep the player, got %+v", r.s.state.Players)
	}
	r.msg("c1", protocol.TypeReady, "shared", nil)
	if got := r.lastError("c1"); got != "" {
		t.Fatalf("first connection lost its player: %q", got)
	}
	if !r.s.state.Players["shared"].Ready {
		t.Fatalf("expected ready from the first connection")
	}

	// Once the first connection is gone the id may be reused under a new name.
	r.disconnect("c1")
	r.connect("c3")
	r.msg("c3", protocol.TypeJoin, "shared", protocol.JoinData{Username: "bob"})
	if p := r.s.state.Players["shared"]; p == nil || p.Username != "bob" {
		t.Fatalf("expected bob to join after alice left, got %+v", r.s.state.Players)
	}
}

func TestPlayerIDFallsBackToConnection(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	r.connect("anon")
	r.msg("anon", protocol.TypeJoin, "", protocol.JoinData{Username: "guest"})
	if _, ok := r.s.state.Players["anon"]; !ok {
		t.Fatalf("expected player keyed by connection id")
	}
	// The id is fixed once joined.
	r.msg("anon", protocol.TypeReady, "someone-else", nil)
	if !r.s.state.Players["anon"].Ready {
		t.Fatalf("expected ready on joined player")
	}
}

func TestReadyUnready(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	r.msg("cp1", protocol.TypeReady, "p1", nil)
	if !r.s.state.Players["p1"].Ready {
		t.Fatalf("expected ready")
	}
	r.msg("cp1", protocol.TypeUnready, "p1", nil)
	if r.s.state.Players["p1"].Ready {
		t.Fatalf("expected unready")
	}

	r.connect("c9")
	r.msg("c9", protocol.TypeReady, "p9", nil)
	if got := r.lastError("c9"); got != ErrNotInRoom.Error() {
		t.Fatalf("expected not in room, got %q", got)
	}
}

func TestStartGuards(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")

	r.msg("cp2", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 1})
	if got := r.lastError("cp2"); got != ErrNotStarted.Error() {
		t.Fatalf("expected not started, got %q", got)
	}
	r.msg("cp2", protocol.TypeStart, "p2", nil)
	if got := r.lastError("cp2"); got != ErrNotHost.Error() {
		t.Fatalf("expected not host, got %q", got)
	}
	if r.s.state.Started {
		t.Fatalf("non-host start mutated the room")
	}

	r.msg("cp1", protocol.TypeStart, "p1", nil)
	starts := r.rec.to("cp2", protocol.TypeRaceStart)
	if len(starts) != 1 {
		t.Fatalf("expected race-start broadcast")
	}
	data, _ := protocol.DecodeData[protocol.RaceStartData](starts[0])
	if len(data.WordList) != 4 || data.TimeLimit != 15 || data.StartedAt != r.clock.Now().UnixMilli() {
		t.Fatalf("unexpected race-start: %+v", data)
	}

	r.msg("cp1", protocol.TypeStart, "p1", nil)
	if got := r.lastError("cp1"); got != ErrAlreadyStarted.Error() {
		t.Fatalf("expected already started, got %q", got)
	}
	r.connect("late")
	r.msg("late", protocol.TypeJoin, "p3", protocol.JoinData{Username: "late"})
	if got := r.lastError("late"); got != ErrAlreadyStarted.Error() {
		t.Fatalf("expected late join rejection, got %q", got)
	}
}

func TestStartKeepsSentencesTogether(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c1")
	r.msg("c1", protocol.TypeCreate, "p1", protocol.CreateData{Mode: "sentences"})
	r.msg("c1", protocol.TypeJoin, "p1", protocol.JoinData{Username: "p1"})
	r.msg("c1", protocol.TypeStart, "p1", nil)

	got := strings.Join(r.s.state.WordList, " ")
	if got != "one two three four five" && got != "three four five one two" {
		t.Fatalf("sentence words out of order: %q", got)
	}
}

func TestStartWithoutWords(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	r.s.words = wordsStub{}
	r.msg("cp1", protocol.TypeStart, "p1", nil)
	if got := r.lastError("cp1"); got != "word list unavailable" {
		t.Fatalf("unexpected error %q", got)
	}
	if r.s.state.Started {
		t.Fatalf("room started without words")
	}
}

func TestProgressLastWriteWins(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")
	r.msg("cp1", protocol.TypeStart, "p1", nil)

	r.msg("cp2", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 3, WPM: 40, Accuracy: 90})
	r.msg("cp2", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 2, WPM: 35, Accuracy: 88})
	p := r.s.state.Players["p2"]
	if p.Progress != 2 || p.WPM != 35 || p.Accuracy != 88 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	r.msg("cp2", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 99})
	if p.Progress != 4 {
		t.Fatalf("progress must be bounded by the word list, got %d", p.Progress)
	}
}

func TestFinishAggregation(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")
	r.msg("cp1", protocol.TypeStart, "p1", nil)

	r.msg("cp1", protocol.TypeFinish, "p1", protocol.FinishData{Results: model.Results{WPM: 50, Accuracy: 96, CorrectChars: 125}})
	if r.s.state.FinishedAt != 0 {
		t.Fatalf("room finished after one of two players")
	}
	if len(r.rec.to("cp1", protocol.TypeRaceFinished)) != 0 {
		t.Fatalf("race-finished sent too early")
	}

	r.clock.Advance(5 * time.Second)
	r.msg("cp2", protocol.TypeFinish, "p2", protocol.FinishData{Results: model.Results{WPM: 70, Accuracy: 91}})
	if r.s.state.FinishedAt != r.clock.Now().UnixMilli() {
		t.Fatalf("expected finishedAt to be set, got %d", r.s.state.FinishedAt)
	}
	finished := r.rec.to("cp1", protocol.TypeRaceFinished)
	if len(finished) != 1 {
		t.Fatalf("expected one race-finished, got %d", len(finished))
	}
	data, _ := protocol.DecodeData[protocol.RaceFinishedData](finished[0])
	if len(data.Players) != 2 || data.Players[0].ID != "p2" {
		t.Fatalf("expected p2 ranked first: %+v", data.Players)
	}

	finishedAt := r.s.state.FinishedAt
	r.clock.Advance(time.Second)
	r.msg("cp1", protocol.TypeFinish, "p1", protocol.FinishData{})
	if r.s.state.FinishedAt != finishedAt {
		t.Fatalf("finishedAt must be set once")
	}
	if got := r.lastError("cp1"); got != ErrRaceOver.Error() {
		t.Fatalf("expected race over, got %q", got)
	}
}

func TestDisconnectCompletesRace(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")
	r.msg("cp1", protocol.TypeStart, "p1", nil)
	r.msg("cp1", protocol.TypeFinish, "p1", protocol.FinishData{Results: model.Results{WPM: 30, Accuracy: 100}})
	r.disconnect("cp2")
	if r.s.state.FinishedAt == 0 {
		t.Fatalf("expected race to finish when the last unfinished player left")
	}
	if len(r.rec.to("cp1", protocol.TypeRaceFinished)) != 1 {
		t.Fatalf("expected race-finished broadcast")
	}
}

func TestHostPromotion(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2", "p3")

	r.disconnect("cp1")
	if r.s.state.HostID != "p2" {
		t.Fatalf("expected earliest joiner p2 to be host, got %q", r.s.state.HostID)
	}
	r.msg("cp2", protocol.TypeStart, "p2", nil)
	if !r.s.state.Started {
		t.Fatalf("promoted host could not start")
	}

	r.msg("cp2", protocol.TypeLeave, "p2", nil)
	if r.s.state.HostID != "p3" {
		t.Fatalf("expected p3 to be host, got %q", r.s.state.HostID)
	}
	if _, ok := r.s.conns["cp2"]; !ok {
		t.Fatalf("leave must keep the connection")
	}
	r.disconnect("cp3")
	if r.s.state.HostID != "" {
		t.Fatalf("empty room must have no host")
	}
}

func TestCreatorLeavingBeforeJoinHandsOverHost(t *testing.T) {
	r := newTestRoom(t)
	r.connect("creator")
	r.msg("creator", protocol.TypeCreate, "boss", nil)
	r.connect("c2")
	r.msg("c2", protocol.TypeJoin, "p2", protocol.JoinData{Username: "p2"})
	if r.s.state.HostID != "boss" {
		t.Fatalf("host should stay with the creator while connected")
	}
	r.disconnect("creator")
	if r.s.state.HostID != "p2" {
		t.Fatalf("expected p2 to take over, got %q", r.s.state.HostID)
	}
}

func TestChat(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1", "p2")
	r.msg("cp2", protocol.TypeMessage, "p2", protocol.ChatData{Text: "  glhf  "})
	msgs := r.rec.to("cp1", protocol.TypeMessage)
	if len(msgs) != 1 {
		t.Fatalf("expected one chat message, got %d", len(msgs))
	}
	data, _ := protocol.DecodeData[protocol.ChatData](msgs[0])
	if data.From != "p2" || data.Username != "p2" || data.Text != "glhf" {
		t.Fatalf("unexpected chat: %+v", data)
	}
	r.msg("cp2", protocol.TypeMessage, "p2", protocol.ChatData{Text: " "})
	if len(r.rec.to("cp1", protocol.TypeMessage)) != 1 {
		t.Fatalf("blank chat must be dropped")
	}
}

func TestSync(t *testing.T) {
	r := newTestRoom(t)
	r.connect("c0")
	r.msg("c0", protocol.TypeSync, "", nil)
	if got := r.lastError("c0"); got != ErrRoomNotFound.Error() {
		t.Fatalf("expected room not found, got %q", got)
	}

	r.setup("p1", "p2")
	r.msg("cp2", protocol.TypeSync, "p2", nil)
	replies := r.rec.to("cp2", protocol.TypeSync)
	if len(replies) != 1 {
		t.Fatalf("expected sync reply")
	}
	data, _ := protocol.DecodeData[protocol.SyncData](replies[0])
	if data.Room.Code != "ABC123" || data.Room.Host != "p1" || len(data.Room.Players) != 2 {
		t.Fatalf("unexpected sync: %+v", data.Room)
	}
	if len(r.rec.to("cp1", protocol.TypeSync)) != 0 {
		t.Fatalf("sync reply must go to the requester only")
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	r := newTestRoom(t)
	r.setup("p1")
	before := r.rec.count()
	players, _, _ := r.kv.Get(context.Background(), keyPlayers)

	r.raw("cp1", []byte("{not json"))
	r.raw("cp1", []byte(`{"type":"teleport"}`))
	r.raw("cp1", []byte(`{"type":"join","data":{"username":42}}`))
	r.raw("unknown-conn", []byte(`{"type":"sync"}`))

	if r.rec.count() != before {
		t.Fatalf("malformed messages produced replies")
	}
	after, _, _ := r.kv.Get(context.Background(), keyPlayers)
	if string(after) != string(players) {
		t.Fatalf("persisted roster changed: %s -> %s", players, after)
	}
	if len(r.s.state.Players) != 1 {
		t.Fatalf("roster changed")
	}
}

func TestRecoverPersistedRoom(t *testing.T) {
	kv := NewMemoryKV()
	r := newTestRoomWithKV(t, kv)
	r.setup("p1", "p2")
	r.msg("cp1", protocol.TypeStart, "p1", nil)
	r.msg("cp2", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 2, WPM: 20, Accuracy: 80})

	recovered := newTestRoomWithKV(t, kv)
	st := recovered.s.state
	if !recovered.s.initialized || !st.Started || st.HostID != "p1" || st.TimeLimitSeconds != 15 {
		t.Fatalf("unexpected recovered room: %+v", st)
	}
	if len(st.Players) != 2 || st.Players["p2"].Progress != 2 {
		t.Fatalf("unexpected recovered roster: %+v", st.Players)
	}
	if len(st.WordList) != 4 {
		t.Fatalf("expected word list to survive, got %v", st.WordList)
	}

	// Rejoining with the same player id resumes the race.
	recovered.connect("again")
	recovered.msg("again", protocol.TypeJoin, "p2", protocol.JoinData{Username: "p2"})
	recovered.msg("again", protocol.TypeProgress, "p2", protocol.ProgressData{Progress: 3})
	if st.Players["p2"].Progress != 3 {
		t.Fatalf("expected progress after rejoin")
	}
}

func TestRecoverPartialCreate(t *testing.T) {
	kv := NewMemoryKV()
	if err := kv.Put(context.Background(), keyInitialized, []byte("true")); err != nil {
		t.Fatalf("put: %v", err)
	}
	r := newTestRoomWithKV(t, kv)
	if !r.s.initialized || len(r.s.state.Players) != 0 {
		t.Fatalf("expected initialized empty room")
	}
	r.connect("c1")
	r.msg("c1", protocol.TypeJoin, "p1", protocol.JoinData{Username: "alice"})
	if r.s.state.HostID != "p1" {
		t.Fatalf("first joiner of a hostless room should become host, got %q", r.s.state.HostID)
	}
}

func TestRecoverCorruptRoster(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	_ = kv.Put(ctx, keyInitialized, []byte("true"))
	_ = kv.Put(ctx, keyPlayers, []byte("{broken"))
	r := newTestRoomWithKV(t, kv)
	if !r.s.initialized || len(r.s.state.Players) != 0 {
		t.Fatalf("corrupt roster should load as empty")
	}
}
