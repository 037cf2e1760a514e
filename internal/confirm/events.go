// Package confirm folds the racing payment notification channels (callback
// redirect, window message, shared result store, popup-closed detection)
// into a single de-duplicated verification attempt per payment reference.
package confirm

import (
	"strings"
	"time"
)

// EventType classifies a normalized confirmation signal.
type EventType string

const (
	EventSuccess EventType = "SUCCESS"
	EventFailed  EventType = "FAILED"
	EventClosed  EventType = "CLOSED"
)

// Event is the single shape every channel is normalized into.
type Event struct {
	Type      EventType
	Reference string
	// Source names the channel that produced the event.
	Source string
	At     time.Time
}

const messageTypePrefix = "PAYMENT_"

// rejectedSources lists message origins known to emit unrelated window
// messages that must never be mistaken for payment signals.
var rejectedSources = map[string]struct{}{
	"react-devtools-content-script": {},
	"react-devtools-bridge":         {},
	"metamask-inpage":               {},
	"webpack-dev-server":            {},
}

// Message is a raw inbound window message before normalization.
type Message struct {
	Type      string
	Source    string
	Reference string
	Status    string
}

// NormalizeMessage filters and converts a raw message into an Event. The
// second return value is false for messages that are not payment signals.
func NormalizeMessage(msg Message, at time.Time) (Event, bool) {
	if _, rejected := rejectedSources[strings.ToLower(strings.TrimSpace(msg.Source))]; rejected {
		return Event{}, false
	}

	msgType := strings.ToUpper(strings.TrimSpace(msg.Type))
	if !strings.HasPrefix(msgType, messageTypePrefix) {
		return Event{}, false
	}

	reference := strings.TrimSpace(msg.Reference)
	if reference == "" {
		return Event{}, false
	}

	event := Event{Reference: reference, Source: "message", At: at}
	switch strings.TrimPrefix(msgType, messageTypePrefix) {
	case "SUCCESS":
		event.Type = EventSuccess
	case "FAILED", "CANCELLED":
		event.Type = EventFailed
	case "CLOSED":
		event.Type = EventClosed
	default:
		return Event{}, false
	}
	return event, true
}

// NormalizeCallback converts the callback page's query parameters into an
// Event. Hosted checkout redirects carry reference and status.
func NormalizeCallback(reference, status string, at time.Time) (Event, bool) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return Event{}, false
	}

	event := Event{Reference: ref, Source: "callback", At: at}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "success", "successful":
		// Providers omit the status parameter on the success path.
		event.Type = EventSuccess
	case "failed", "cancelled", "abandoned":
		event.Type = EventFailed
	default:
		event.Type = EventFailed
	}
	return event, true
}
