// Package world is a reference implementation of the world collaborators: a
// small room graph with occupancy tracking and room-scoped event broadcast.
// It exists so the daemon runs end to end without an external world server.
package world

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

// Room is one location in the graph. Exits name other rooms; travel is only
// possible along listed exits.
type Room struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Exits       []string `json:"exits,omitempty"`
}

// RoomView is a Room plus its current occupants, for inspection surfaces.
type RoomView struct {
	Room
	Occupants []string `json:"occupants,omitempty"`
}

// ObserverFunc receives events visible to the agent it was registered for.
// Called outside the world's lock; implementations may call back into the
// world.
type ObserverFunc func(event string)

type room struct {
	name        string
	description string
	exits       []string
	occupants   map[string]struct{}
}

// World tracks rooms, who is where, and who observes what. Safe for
// concurrent use.
type World struct {
	mu        sync.RWMutex
	rooms     map[string]*room
	residents map[string]string
	observers map[string]ObserverFunc
	activity  map[string]string
	logger    *zap.Logger
}

var (
	_ domain.WorldProvider  = (*World)(nil)
	_ domain.ActionExecutor = (*World)(nil)
)

// DefaultRooms is the built-in three-room house used when no map is
// configured.
func DefaultRooms() []Room {
	return []Room{
		{
			Name: "Living Room",
			Description: "A cozy living room with a comfortable sofa and a coffee table. " +
				"There's a bookshelf against one wall and a window overlooking a garden.",
			Exits: []string{"Kitchen", "Bedroom"},
		},
		{
			Name:        "Kitchen",
			Description: "A functional kitchen with modern appliances. There's a stove, refrigerator, and sink.",
			Exits:       []string{"Living Room"},
		},
		{
			Name: "Bedroom",
			Description: "A peaceful bedroom with a bed and a window overlooking a garden. " +
				"There's a small desk and a chair in the corner.",
			Exits: []string{"Living Room"},
		},
	}
}

func New(rooms []Room, logger *zap.Logger) (*World, error) {
	if len(rooms) == 0 {
		rooms = DefaultRooms()
	}
	w := &World{
		rooms:     make(map[string]*room, len(rooms)),
		residents: make(map[string]string),
		observers: make(map[string]ObserverFunc),
		activity:  make(map[string]string),
		logger:    logger,
	}
	for _, r := range rooms {
		key := roomKey(r.Name)
		if key == "" {
			return nil, fmt.Errorf("room with empty name")
		}
		if _, ok := w.rooms[key]; ok {
			return nil, fmt.Errorf("duplicate room %q", r.Name)
		}
		w.rooms[key] = &room{
			name:        r.Name,
			description: r.Description,
			exits:       append([]string(nil), r.Exits...),
			occupants:   make(map[string]struct{}),
		}
	}
	for _, r := range w.rooms {
		for _, exit := range r.exits {
			if _, ok := w.rooms[roomKey(exit)]; !ok {
				return nil, fmt.Errorf("room %q has exit to unknown room %q", r.name, exit)
			}
		}
	}
	return w, nil
}

func roomKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Place puts an agent in the named room, removing it from wherever it was.
func (w *World) Place(agentID, roomName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.rooms[roomKey(roomName)]
	if !ok {
		return fmt.Errorf("no such place %q", roomName)
	}
	if prev, ok := w.residents[agentID]; ok {
		delete(w.rooms[prev].occupants, agentID)
	}
	r.occupants[agentID] = struct{}{}
	w.residents[agentID] = roomKey(roomName)
	return nil
}

// Remove takes an agent out of the world and drops its observer.
func (w *World) Remove(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.residents[agentID]; ok {
		delete(w.rooms[prev].occupants, agentID)
	}
	delete(w.residents, agentID)
	delete(w.observers, agentID)
	delete(w.activity, agentID)
}

// RegisterObserver wires an agent's event sink. One observer per agent; a
// second registration replaces the first.
func (w *World) RegisterObserver(agentID string, fn ObserverFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers[agentID] = fn
}

func (w *World) Snapshot(agentID string) (domain.WorldSnapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	key, ok := w.residents[agentID]
	if !ok {
		return domain.WorldSnapshot{}, fmt.Errorf("%s is not in the world", agentID)
	}
	r := w.rooms[key]
	return domain.WorldSnapshot{
		Location:    r.name,
		Description: r.description,
		Exits:       append([]string(nil), r.exits...),
		Actors:      r.othersSorted(agentID),
	}, nil
}

// Announce marks an agent's visible activity and shows it to everyone else in
// the room. Mirrors the "is thinking" marker other agents act on.
func (w *World) Announce(agentID, activity string) {
	w.mu.Lock()
	key, placed := w.residents[agentID]
	if placed {
		w.activity[agentID] = activity
	}
	var pending []delivery
	if placed {
		pending = w.collectRoomEvents(key, agentID, fmt.Sprintf("%s %s.", agentID, activity))
	}
	w.mu.Unlock()

	deliver(pending)
}

// Execute applies a decision to the world and reports what the actor
// perceives. A failed action produces a message only the actor sees.
func (w *World) Execute(agentID string, d domain.Decision) domain.ActionResult {
	w.mu.Lock()
	key, placed := w.residents[agentID]
	if !placed {
		w.mu.Unlock()
		return domain.ActionResult{Success: false, Message: "You are nowhere."}
	}
	delete(w.activity, agentID)

	var (
		result  domain.ActionResult
		pending []delivery
	)
	arg := strings.TrimSpace(strings.Join(d.Args, " "))
	switch d.Verb {
	case "look":
		result = domain.ActionResult{Success: true, Message: w.describe(key, agentID)}
		pending = w.collectRoomEvents(key, agentID, fmt.Sprintf("%s looks around.", agentID))
	case "go":
		result, pending = w.move(agentID, key, arg)
	case "say":
		if arg == "" {
			result = domain.ActionResult{Success: false, Message: "There is nothing to say."}
			break
		}
		result = domain.ActionResult{Success: true, Message: fmt.Sprintf("You say: %q", arg)}
		pending = w.collectRoomEvents(key, agentID, fmt.Sprintf("%s says: %q", agentID, arg))
	case "shout":
		if arg == "" {
			result = domain.ActionResult{Success: false, Message: "There is nothing to shout."}
			break
		}
		result = domain.ActionResult{Success: true, Message: fmt.Sprintf("You shout: %q", arg)}
		pending = w.collectGlobalEvents(agentID, fmt.Sprintf("%s shouts: %q", agentID, arg))
	case "emote":
		if arg == "" {
			result = domain.ActionResult{Success: false, Message: "You gesture vaguely at nothing."}
			break
		}
		line := fmt.Sprintf("%s %s", agentID, arg)
		result = domain.ActionResult{Success: true, Message: line}
		pending = w.collectRoomEvents(key, agentID, line)
	case "examine":
		result, pending = w.examine(agentID, key, arg)
	default:
		result = domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("You try to %s, but nothing happens.", strings.TrimSpace(d.Verb+" "+arg)),
		}
	}
	w.mu.Unlock()

	deliver(pending)
	if w.logger != nil {
		w.logger.Debug("world action",
			zap.String("agent_id", agentID),
			zap.String("verb", d.Verb),
			zap.Bool("success", result.Success))
	}
	return result
}

// move relocates the actor along an exit. Both rooms hear about it. The
// actor's message includes a look at the new room so the memory entry carries
// its bearings.
func (w *World) move(agentID, fromKey, destination string) (domain.ActionResult, []delivery) {
	if destination == "" {
		return domain.ActionResult{Success: false, Message: "Go where?"}, nil
	}
	from := w.rooms[fromKey]
	var destName string
	for _, exit := range from.exits {
		if strings.EqualFold(exit, destination) {
			destName = exit
			break
		}
	}
	if destName == "" {
		if _, exists := w.rooms[roomKey(destination)]; exists {
			return domain.ActionResult{
				Success: false,
				Message: fmt.Sprintf("There is no direct path to %s from here.", destination),
			}, nil
		}
		return domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("There is no place called %q.", destination),
		}, nil
	}

	destKey := roomKey(destName)
	delete(from.occupants, agentID)
	w.rooms[destKey].occupants[agentID] = struct{}{}
	w.residents[agentID] = destKey

	pending := w.collectRoomEvents(fromKey, agentID, fmt.Sprintf("%s goes to the %s.", agentID, destName))
	pending = append(pending, w.collectRoomEvents(destKey, agentID, fmt.Sprintf("%s arrives from the %s.", agentID, from.name))...)

	msg := fmt.Sprintf("You go to the %s.\n%s", destName, w.describe(destKey, agentID))
	return domain.ActionResult{Success: true, Message: msg}, pending
}

func (w *World) examine(agentID, key, target string) (domain.ActionResult, []delivery) {
	if target == "" {
		return domain.ActionResult{Success: false, Message: "Examine what?"}, nil
	}
	r := w.rooms[key]
	subject := target
	for occupant := range r.occupants {
		if strings.EqualFold(occupant, target) {
			subject = occupant
			break
		}
	}
	msg := fmt.Sprintf("You examine %s. Nothing special.", subject)
	if strings.EqualFold(subject, agentID) {
		msg = "You examine yourself."
	}
	pending := w.collectRoomEvents(key, agentID, fmt.Sprintf("%s examines %s.", agentID, subject))
	return domain.ActionResult{Success: true, Message: msg}, pending
}

// describe renders what an actor sees standing in a room. Caller holds at
// least a read lock.
func (w *World) describe(key, agentID string) string {
	r := w.rooms[key]
	var sb strings.Builder
	fmt.Fprintf(&sb, "You look around the %s: %s", r.name, r.description)

	switch len(r.exits) {
	case 0:
		sb.WriteString(" There is no way out.")
	case 1:
		fmt.Fprintf(&sb, " The only exit leads to the %s.", r.exits[0])
	default:
		fmt.Fprintf(&sb, " Exits lead to %s.", joinNames(r.exits))
	}

	others := r.othersSorted(agentID)
	switch len(others) {
	case 0:
		sb.WriteString(" You are alone here.")
	case 1:
		fmt.Fprintf(&sb, " %s is here.", others[0])
	default:
		fmt.Fprintf(&sb, " %s are here.", joinNames(others))
	}
	return sb.String()
}

// Rooms dumps the current map with occupants, for the HTTP surface.
func (w *World) Rooms() []RoomView {
	w.mu.RLock()
	defer w.mu.RUnlock()

	views := make([]RoomView, 0, len(w.rooms))
	for _, r := range w.rooms {
		occupants := make([]string, 0, len(r.occupants))
		for id := range r.occupants {
			occupants = append(occupants, id)
		}
		sort.Strings(occupants)
		views = append(views, RoomView{
			Room: Room{
				Name:        r.name,
				Description: r.description,
				Exits:       append([]string(nil), r.exits...),
			},
			Occupants: occupants,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// Activity reports an agent's current visible activity marker, if any.
func (w *World) Activity(agentID string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activity[agentID]
}

func (r *room) othersSorted(agentID string) []string {
	others := make([]string, 0, len(r.occupants))
	for id := range r.occupants {
		if id != agentID {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	return others
}

type delivery struct {
	fn    ObserverFunc
	event string
}

// collectRoomEvents gathers observer deliveries for everyone in a room except
// the actor. Caller holds the lock; deliveries are invoked after release.
func (w *World) collectRoomEvents(key, actor, event string) []delivery {
	r := w.rooms[key]
	ids := make([]string, 0, len(r.occupants))
	for id := range r.occupants {
		if id != actor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var pending []delivery
	for _, id := range ids {
		if fn, ok := w.observers[id]; ok {
			pending = append(pending, delivery{fn: fn, event: event})
		}
	}
	return pending
}

// collectGlobalEvents gathers deliveries for every placed agent except the
// actor. Shouts carry everywhere.
func (w *World) collectGlobalEvents(actor, event string) []delivery {
	ids := make([]string, 0, len(w.residents))
	for id := range w.residents {
		if id != actor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var pending []delivery
	for _, id := range ids {
		if fn, ok := w.observers[id]; ok {
			pending = append(pending, delivery{fn: fn, event: event})
		}
	}
	return pending
}

func deliver(pending []delivery) {
	for _, d := range pending {
		d.fn(d.event)
	}
}

func joinNames(names []string) string {
	if len(names) <= 1 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
