package amqp

import (
	"encoding/json"
	"time"

	"bilancio/internal/core"
)

// LedgerEvent announces a completed mutation. Consumers fetch the current
// record themselves; the event carries identity only.
type LedgerEvent struct {
	UserID    string    `json:"user_id"`
	Entity    string    `json:"entity"`
	Op        string    `json:"op"`
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MonthClosedMessage tells the export worker a monthly summary is ready.
// The worker loads the summary by id, so a re-closed month is exported
// with whatever totals are current at consume time.
type MonthClosedMessage struct {
	UserID    string     `json:"user_id"`
	Month     core.Month `json:"month"`
	SummaryID string     `json:"summary_id"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewLedgerEvent(userID, entity, op, id string) *LedgerEvent {
	return &LedgerEvent{
		UserID:    userID,
		Entity:    entity,
		Op:        op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func NewMonthClosedMessage(userID string, month core.Month, summaryID string) *MonthClosedMessage {
	return &MonthClosedMessage{
		UserID:    userID,
		Month:     month,
		SummaryID: summaryID,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *MonthClosedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MonthClosedMessageFromJSON(data []byte) (*MonthClosedMessage, error) {
	var msg MonthClosedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
