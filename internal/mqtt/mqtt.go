// Package mqtt publishes encoded frames and lifecycle events to an MQTT
// broker, as an alternative or companion to the XBee radio.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// TopicPrefix is the root of every topic the node publishes on.
const TopicPrefix = "occupancy/node"

// FramesTopic is the topic carrying raw frames for node.
func FramesTopic(node byte) string {
	return fmt.Sprintf("%s/%d/frames", TopicPrefix, node)
}

// SystemTopic is the topic carrying lifecycle events for node.
func SystemTopic(node byte) string {
	return fmt.Sprintf("%s/%d/system", TopicPrefix, node)
}

// Publisher publishes frames and system events to MQTT.
type Publisher interface {
	// Send publishes one encoded frame. Returns error if publishing fails
	// (should not crash the process).
	Send(frame []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events
// that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Node      int    `json:"node"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(node byte, event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Node:      int(node),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
