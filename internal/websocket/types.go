package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is sent after a text or document was redacted
	EventTypeRedaction EventType = "redaction"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// RedactionEvent summarizes one redaction run. It never carries document
// text or span offsets.
type RedactionEvent struct {
	RequestID    string         `json:"request_id"`
	Source       string         `json:"source"` // text, document or batch
	Mode         string         `json:"mode"`
	Pages        int            `json:"pages,omitempty"`
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	ProcessingMS float64        `json:"processing_ms"`
	ClientIP     string         `json:"client_ip,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalRedactions  int64  `json:"total_redactions"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	MemoryUsage      string `json:"memory_usage"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string               `json:"type"`
	Data *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the redaction events a client receives. Other event
// types are not filtered.
type EventFilter struct {
	Categories    []string `json:"categories,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	MinRedactions int      `json:"min_redactions,omitempty"`
	ExcludeClean  bool     `json:"exclude_clean,omitempty"`
}

// Client represents a WebSocket client connection
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
