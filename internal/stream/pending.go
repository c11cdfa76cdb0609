package stream

import "time"

// PendingEntry is the server-side record that a message was delivered to
// some consumer in a group and not yet acknowledged. Its owner can change
// over time via claims; only one entry exists per (group, id) at any
// instant.
type PendingEntry struct {
	ID            ID            `json:"id"`
	Consumer      string        `json:"consumer"`
	Idle          time.Duration `json:"idle"`
	DeliveryCount int64         `json:"deliveryCount"`
}

// Ownership is a point-in-time answer to "do I still own this message".
// It is immediately stale once returned: a concurrent claim can move the
// entry to another consumer the instant after the lookup.
type Ownership struct {
	ID            ID            `json:"id"`
	Owner         string        `json:"owner"`
	Idle          time.Duration `json:"idle"`
	DeliveryCount int64         `json:"deliveryCount"`
	Mine          bool          `json:"mine"`
}
