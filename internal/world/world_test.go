package world

import (
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) observe(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

// newTestWorld builds the default house with ember and willow in the Living
// Room and flint in the Kitchen, each with a recording observer.
func newTestWorld(t *testing.T) (*World, map[string]*recorder) {
	t.Helper()
	w, err := New(nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recorders := make(map[string]*recorder)
	for agent, room := range map[string]string{
		"ember": "Living Room", "willow": "Living Room", "flint": "Kitchen",
	} {
		if err := w.Place(agent, room); err != nil {
			t.Fatalf("Place %s: %v", agent, err)
		}
		rec := &recorder{}
		recorders[agent] = rec
		w.RegisterObserver(agent, rec.observe)
	}
	return w, recorders
}

func do(w *World, agent, verb string, args ...string) domain.ActionResult {
	return w.Execute(agent, domain.Decision{Verb: verb, Args: args})
}

func TestSnapshotReportsRoomAndCompany(t *testing.T) {
	w, _ := newTestWorld(t)

	snap, err := w.Snapshot("ember")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Location != "Living Room" {
		t.Errorf("location = %q", snap.Location)
	}
	if snap.Description == "" {
		t.Error("expected a description")
	}
	if len(snap.Exits) != 2 || snap.Exits[0] != "Kitchen" || snap.Exits[1] != "Bedroom" {
		t.Errorf("exits = %v", snap.Exits)
	}
	if len(snap.Actors) != 1 || snap.Actors[0] != "willow" {
		t.Errorf("actors = %v, want just willow", snap.Actors)
	}

	if _, err := w.Snapshot("ghost"); err == nil {
		t.Fatal("expected error for an agent that was never placed")
	}
}

func TestGoFollowsExitsOnly(t *testing.T) {
	w, _ := newTestWorld(t)

	res := do(w, "ember", "go", "kitchen")
	if !res.Success {
		t.Fatalf("go kitchen failed: %s", res.Message)
	}
	if !strings.Contains(res.Message, "You go to the Kitchen.") ||
		!strings.Contains(res.Message, "You look around the Kitchen") {
		t.Errorf("move message should include arrival and a look: %q", res.Message)
	}
	snap, err := w.Snapshot("ember")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Location != "Kitchen" {
		t.Errorf("agent did not move, location = %q", snap.Location)
	}
	if len(snap.Actors) != 1 || snap.Actors[0] != "flint" {
		t.Errorf("expected flint in the kitchen, got %v", snap.Actors)
	}

	res = do(w, "ember", "go", "bedroom")
	if res.Success || !strings.Contains(res.Message, "no direct path") {
		t.Errorf("kitchen has no exit to bedroom: %+v", res)
	}

	res = do(w, "ember", "go", "attic")
	if res.Success || !strings.Contains(res.Message, "no place called") {
		t.Errorf("unknown destination should fail: %+v", res)
	}

	res = do(w, "ember", "go")
	if res.Success || res.Message != "Go where?" {
		t.Errorf("empty destination should fail: %+v", res)
	}
}

func TestSpeechIsRoomScopedAndShoutGlobal(t *testing.T) {
	w, recs := newTestWorld(t)

	res := do(w, "ember", "say", "hello", "there")
	if !res.Success || res.Message != `You say: "hello there"` {
		t.Fatalf("say result: %+v", res)
	}
	if got := recs["willow"].last(); got != `ember says: "hello there"` {
		t.Errorf("willow heard %q", got)
	}
	if got := recs["flint"].all(); len(got) != 0 {
		t.Errorf("flint is in another room and should hear nothing, got %v", got)
	}
	if got := recs["ember"].all(); len(got) != 0 {
		t.Errorf("actors never observe their own events, got %v", got)
	}

	res = do(w, "ember", "shout", "anyone home")
	if !res.Success {
		t.Fatalf("shout failed: %+v", res)
	}
	want := `ember shouts: "anyone home"`
	if got := recs["willow"].last(); got != want {
		t.Errorf("willow heard %q", got)
	}
	if got := recs["flint"].last(); got != want {
		t.Errorf("shouts carry everywhere, flint heard %q", got)
	}

	res = do(w, "ember", "emote", "stretches", "slowly")
	if !res.Success || res.Message != "ember stretches slowly" {
		t.Fatalf("emote result: %+v", res)
	}
	if got := recs["willow"].last(); got != "ember stretches slowly" {
		t.Errorf("willow saw %q", got)
	}
}

func TestMovementNotifiesBothRooms(t *testing.T) {
	w, recs := newTestWorld(t)

	if res := do(w, "ember", "go", "Kitchen"); !res.Success {
		t.Fatalf("go failed: %+v", res)
	}
	if got := recs["willow"].last(); got != "ember goes to the Kitchen." {
		t.Errorf("origin room saw %q", got)
	}
	if got := recs["flint"].last(); got != "ember arrives from the Living Room." {
		t.Errorf("destination room saw %q", got)
	}
}

func TestAnnounceShowsActivityUntilNextAction(t *testing.T) {
	w, recs := newTestWorld(t)

	w.Announce("ember", "is thinking")
	if got := recs["willow"].last(); got != "ember is thinking." {
		t.Errorf("willow saw %q", got)
	}
	if got := recs["flint"].all(); len(got) != 0 {
		t.Errorf("announcements are room-scoped, flint saw %v", got)
	}
	if got := w.Activity("ember"); got != "is thinking" {
		t.Errorf("activity marker = %q", got)
	}

	do(w, "ember", "look")
	if got := w.Activity("ember"); got != "" {
		t.Errorf("acting should clear the marker, got %q", got)
	}

	w.Announce("ghost", "is thinking")
	if got := w.Activity("ghost"); got != "" {
		t.Errorf("unplaced agents carry no marker, got %q", got)
	}
}

func TestLookAndExamine(t *testing.T) {
	w, recs := newTestWorld(t)

	res := do(w, "ember", "look")
	if !res.Success {
		t.Fatalf("look failed: %+v", res)
	}
	for _, want := range []string{"Living Room", "Exits lead to Kitchen and Bedroom.", "willow is here."} {
		if !strings.Contains(res.Message, want) {
			t.Errorf("look message missing %q: %q", want, res.Message)
		}
	}
	if got := recs["willow"].last(); got != "ember looks around." {
		t.Errorf("willow saw %q", got)
	}

	res = do(w, "ember", "examine", "WILLOW")
	if !res.Success || res.Message != "You examine willow. Nothing special." {
		t.Errorf("examine result: %+v", res)
	}
	if got := recs["willow"].last(); got != "ember examines willow." {
		t.Errorf("willow saw %q", got)
	}
}

func TestExecuteRejectsTheUnplacedAndUnknown(t *testing.T) {
	w, _ := newTestWorld(t)

	res := do(w, "ghost", "look")
	if res.Success || res.Message != "You are nowhere." {
		t.Errorf("unplaced agent: %+v", res)
	}

	res = do(w, "ember", "teleport", "moon")
	if res.Success || !strings.Contains(res.Message, "nothing happens") {
		t.Errorf("unknown verb: %+v", res)
	}

	res = do(w, "ember", "say")
	if res.Success {
		t.Errorf("empty say should fail: %+v", res)
	}
}

func TestNewValidatesTheGraph(t *testing.T) {
	if _, err := New([]Room{{Name: "A"}, {Name: "a"}}, zap.NewNop()); err == nil {
		t.Error("expected duplicate room error")
	}
	if _, err := New([]Room{{Name: "A", Exits: []string{"Nowhere"}}}, zap.NewNop()); err == nil {
		t.Error("expected unknown exit error")
	}
	if _, err := New([]Room{{Name: "  "}}, zap.NewNop()); err == nil {
		t.Error("expected empty name error")
	}
}

func TestRoomsViewForInspection(t *testing.T) {
	w, _ := newTestWorld(t)

	views := w.Rooms()
	if len(views) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(views))
	}
	if views[0].Name != "Bedroom" || views[1].Name != "Kitchen" || views[2].Name != "Living Room" {
		t.Errorf("rooms should be name-sorted: %v", []string{views[0].Name, views[1].Name, views[2].Name})
	}
	if got := views[2].Occupants; len(got) != 2 || got[0] != "ember" || got[1] != "willow" {
		t.Errorf("living room occupants = %v", got)
	}
}
