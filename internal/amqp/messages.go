package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"custeio/internal/core"
)

// WarmRequestMessage asks a worker to load one year into the dataset cache.
// Force drops any cached copy first.
type WarmRequestMessage struct {
	Year        int       `json:"year"`
	Force       bool      `json:"force"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewWarmRequestMessage(year int, force bool) *WarmRequestMessage {
	return &WarmRequestMessage{
		Year:        year,
		Force:       force,
		RequestedAt: time.Now(),
	}
}

// Validate rejects years outside the four digit range.
func (m *WarmRequestMessage) Validate() error {
	if _, err := core.NewMonthKey(m.Year, 1); err != nil {
		return fmt.Errorf("warm request year %d: %w", m.Year, err)
	}
	return nil
}

func (m *WarmRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// WarmRequestMessageFromJSON decodes and validates a message body.
func WarmRequestMessageFromJSON(data []byte) (*WarmRequestMessage, error) {
	var msg WarmRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
