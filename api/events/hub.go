// Package events fans mutation events out to live subscribers. Every list
// endpoint has a matching event stream: the Hub is how a mutation tells the
// open feeds for a conversation that their result set changed. Delivery is
// best-effort per feed and carries no ordering guarantee across feeds.
package events

import "sync"

// Type tags what changed.
type Type string

const (
	MessageNew      Type = "message.new"
	MessageDeleted  Type = "message.deleted"
	ReactionToggled Type = "reaction.toggled"
	Typing          Type = "typing"
)

// An Event is one change notification scoped to a conversation.
type Event struct {
	Type           Type   `json:"type"`
	ConversationID string `json:"conversation_id"`
	Payload        any    `json:"payload,omitempty"`
}

// A Hub tracks subscriber channels per conversation.
type Hub struct {
	mu    sync.RWMutex
	feeds map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{feeds: make(map[string]map[chan Event]struct{})}
}

// subscriberBuffer bounds how far a consumer may lag before events are
// dropped for it.
const subscriberBuffer = 16

// Subscribe registers a feed for the conversation and returns the event
// channel plus a cancel func. Cancel closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	feed := h.feeds[conversationID]
	if feed == nil {
		feed = make(map[chan Event]struct{})
		h.feeds[conversationID] = feed
	}
	feed[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if feed, ok := h.feeds[conversationID]; ok {
				delete(feed, ch)
				if len(feed) == 0 {
					delete(h.feeds, conversationID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its conversation. A full
// subscriber buffer drops the event for that subscriber rather than blocking
// the mutation path.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.feeds[evt.ConversationID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports how many feeds are open for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds[conversationID])
}
