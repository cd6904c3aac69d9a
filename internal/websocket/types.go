package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType identifies the kind of event being broadcast
type EventType string

const (
	EventTypeRedaction      EventType = "redaction"
	EventTypeVerification   EventType = "verification"
	EventTypeRegistryUpdate EventType = "registry_update"
	EventTypeConnection     EventType = "connection"
	EventTypeSystemStatus   EventType = "system_status"
)

// Event is the envelope sent to connected clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RedactionEvent reports one finished redaction without carrying any of the
// original text
type RedactionEvent struct {
	RunID            string         `json:"run_id"`
	DocumentID       string         `json:"document_id"`
	Technique        string         `json:"technique"`
	RegistryRevision string         `json:"registry_revision"`
	Substitutions    int            `json:"substitutions"`
	ByKind           map[string]int `json:"by_kind,omitempty"`
	FromCache        bool           `json:"from_cache,omitempty"`
	DurationMs       float64        `json:"duration_ms"`
}

// VerificationEvent reports a verification verdict
type VerificationEvent struct {
	DocumentID string `json:"document_id"`
	Findings   int    `json:"findings"`
	Pass       bool   `json:"pass"`
}

// RegistryEvent reports a registry mutation
type RegistryEvent struct {
	Action   string `json:"action"` // add, remove, merge, variation
	Entity   string `json:"entity,omitempty"`
	Revision string `json:"revision"`
	Entities int    `json:"entities"`
}

// ConnectionEvent reports client connect/disconnect activity
type ConnectionEvent struct {
	Action    string `json:"action"`
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message"`
}

// SystemStatusEvent reports periodic server health
type SystemStatusEvent struct {
	Status            string `json:"status"`
	RegistryRevision  string `json:"registry_revision"`
	RegistryEntities  int    `json:"registry_entities"`
	ActiveConnections int64  `json:"active_connections"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

// Client represents one connected WebSocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}

// ClientMessage is an inbound message from a client
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// SubscriptionRequest narrows which event types a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
