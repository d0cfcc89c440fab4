// Package transcript records what happened during a session: the
// user-visible conversation items and the raw protocol event log. The
// two read models are independent; every visible message corresponds to
// one or more logged events, but not the other way around.
package transcript

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parley-voice/parley-core/core/guardrails"
)

var ErrUnknownItem = errors.New("transcript item not found")

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type ItemKind string

const (
	KindMessage    ItemKind = "MESSAGE"
	KindBreadcrumb ItemKind = "BREADCRUMB"
)

type ItemStatus string

const (
	StatusInProgress ItemStatus = "IN_PROGRESS"
	StatusDone       ItemStatus = "DONE"
)

// Item is one transcript entry. Items are append-only by identity: once
// created they are mutated in place as streamed text arrives but never
// removed.
type Item struct {
	ItemID string
	Kind   ItemKind
	Role   Role
	// Title holds the display text of a message or the label of a
	// breadcrumb.
	Title string
	// Data is an optional structured payload shown when a breadcrumb is
	// expanded.
	Data     any
	Expanded bool
	// Hidden suppresses system-internal turns from the visible log
	// without deleting them.
	Hidden bool
	Status ItemStatus
	// CreatedAt orders the read model. It is a monotonic creation
	// instant, not a wall-clock display time.
	CreatedAt time.Time
	Guardrail *guardrails.Result

	seq int64
}

type Direction string

const (
	DirectionClient Direction = "client"
	DirectionServer Direction = "server"
)

// LoggedEvent is the wire-level record of one raw protocol message.
type LoggedEvent struct {
	ID        int64
	Direction Direction
	EventName string
	EventData any
	Expanded  bool
	LoggedAt  time.Time
}

// Recorder owns both read models. It is the single writer for items and
// events; the guardrail gate only ever merges a verdict onto an
// existing item by id.
type Recorder struct {
	mu sync.RWMutex

	items   map[string]*Item
	nextSeq int64

	events      []LoggedEvent
	nextEventID int64
}

func NewRecorder() *Recorder {
	return &Recorder{items: map[string]*Item{}}
}

func (r *Recorder) AddMessage(itemID string, role Role, text string, hidden bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[itemID]; exists {
		return
	}

	r.nextSeq++
	r.items[itemID] = &Item{
		ItemID:    itemID,
		Kind:      KindMessage,
		Role:      role,
		Title:     text,
		Hidden:    hidden,
		Status:    StatusInProgress,
		CreatedAt: time.Now(),
		seq:       r.nextSeq,
	}
}

func (r *Recorder) AddBreadcrumb(title string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	itemID := fmt.Sprintf("breadcrumb-%d", r.nextSeq)
	r.items[itemID] = &Item{
		ItemID:    itemID,
		Kind:      KindBreadcrumb,
		Title:     title,
		Data:      data,
		Status:    StatusDone,
		CreatedAt: time.Now(),
		seq:       r.nextSeq,
	}
}

// AppendMessageText grows a streamed message in place.
func (r *Recorder) AppendMessageText(itemID string, delta string) error {
	return r.update(itemID, func(item *Item) {
		item.Title += delta
	})
}

func (r *Recorder) SetMessageText(itemID string, text string) error {
	return r.update(itemID, func(item *Item) {
		item.Title = text
	})
}

// CompleteMessage marks a streamed message as finalized, optionally
// replacing its text with the finalized form.
func (r *Recorder) CompleteMessage(itemID string, finalText string) error {
	return r.update(itemID, func(item *Item) {
		if finalText != "" {
			item.Title = finalText
		}
		item.Status = StatusDone
	})
}

// AttachGuardrail merges a moderation verdict onto an existing message.
// It never creates an item; a verdict for an unknown id is an error the
// caller decides how to surface.
func (r *Recorder) AttachGuardrail(itemID string, result guardrails.Result) error {
	return r.update(itemID, func(item *Item) {
		item.Guardrail = &result
	})
}

func (r *Recorder) ToggleExpand(itemID string) error {
	return r.update(itemID, func(item *Item) {
		item.Expanded = !item.Expanded
	})
}

func (r *Recorder) update(itemID string, apply func(*Item)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, itemID)
	}
	apply(item)
	return nil
}

func (r *Recorder) Item(itemID string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Items returns the conversation read model ordered by creation.
func (r *Recorder) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].seq < items[j].seq
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (r *Recorder) LogClientEvent(eventName string, payload any) {
	r.logEvent(DirectionClient, eventName, payload)
}

func (r *Recorder) LogServerEvent(eventName string, payload any) {
	r.logEvent(DirectionServer, eventName, payload)
}

func (r *Recorder) logEvent(direction Direction, eventName string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	r.events = append(r.events, LoggedEvent{
		ID:        r.nextEventID,
		Direction: direction,
		EventName: eventName,
		EventData: payload,
		LoggedAt:  time.Now(),
	})
}

// Events returns the protocol read model in insertion order.
func (r *Recorder) Events() []LoggedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]LoggedEvent, len(r.events))
	copy(events, r.events)
	return events
}

func (r *Recorder) ToggleEventExpand(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].Expanded = !r.events[i].Expanded
			return
		}
	}
}

// Clear resets both read models for a fresh session. Callers that want
// scrollback across connections simply never call it.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = map[string]*Item{}
	r.events = nil
}
