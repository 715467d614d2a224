// Package types contains common types used across the application
package types

import "time"

// Envelope is the message shape pushed to spectators and external sinks.
// SequenceNumber is the ledger sequence of the innings the event belongs to,
// or zero for events outside the ledger such as disputes.
type Envelope struct {
	EventType      string    `json:"event_type"`
	MatchID        string    `json:"match_id"`
	InningsID      string    `json:"innings_id,omitempty"`
	Payload        any       `json:"payload"`
	SequenceNumber int64     `json:"sequence_number"`
	Timestamp      time.Time `json:"timestamp"`
}
