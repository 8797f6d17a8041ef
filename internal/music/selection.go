package music

import "sync"

// PendingAction is bound to a button on a selection message.
type PendingAction interface {
	pendingAction()
}

type PlaySpecificTrack struct {
	Track    Track
	PlayNext bool
	Channel  string
}

type RetryWithAlternateSource struct {
	IsSearch bool
	PlayNext bool
	Query    string
	Source   *Source
}

// QueuePlaylist queues every track of a linked playlist in order.
type QueuePlaylist struct {
	Name     string
	Tracks   []Track
	PlayNext bool
	Channel  string
}

func (PlaySpecificTrack) pendingAction()        {}
func (RetryWithAlternateSource) pendingAction() {}
func (QueuePlaylist) pendingAction()            {}

// SelectionTable maps a message ID to the actions behind its buttons. Each
// message's bindings can be taken exactly once.
type SelectionTable struct {
	mu      sync.Mutex
	entries map[string]map[string]PendingAction
}

func NewSelectionTable() *SelectionTable {
	return &SelectionTable{entries: make(map[string]map[string]PendingAction)}
}

// Publish binds buttons for messageID, replacing any earlier bindings.
func (t *SelectionTable) Publish(messageID string, bindings map[string]PendingAction) {
	if messageID == "" || len(bindings) == 0 {
		return
	}

	copied := make(map[string]PendingAction, len(bindings))
	for id, action := range bindings {
		copied[id] = action
	}

	t.mu.Lock()
	t.entries[messageID] = copied
	t.mu.Unlock()
}

// Take removes every binding for messageID and returns the one for
// buttonID. A second call for the same message always reports false.
func (t *SelectionTable) Take(messageID, buttonID string) (PendingAction, bool) {
	t.mu.Lock()
	bindings, ok := t.entries[messageID]
	delete(t.entries, messageID)
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	action, ok := bindings[buttonID]
	return action, ok
}

func (t *SelectionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *SelectionTable) Clear() {
	t.mu.Lock()
	t.entries = make(map[string]map[string]PendingAction)
	t.mu.Unlock()
}
