package models

import "ccr/src/types"

// WebhookEvent logs every provider delivery. EventID is unique, which is
// what makes reconciliation at-most-once under retried deliveries.
type WebhookEvent struct {
	ID        uint        `gorm:"primarykey" json:"id"`
	EventID   string      `gorm:"uniqueIndex" json:"event_id,omitempty"`
	Type      string      `gorm:"index" json:"type,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   types.JSONB `gorm:"type:jsonb" json:"payload,omitempty"`
	Processed bool        `json:"processed,omitempty"`
	Error     string      `json:"-"`

	types.Timestamps
}
