package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordsChangedMessage announces that an owner's records were written.
// Receivers reload the owner's full record set; the message carries no
// record data.
type RecordsChangedMessage struct {
	OwnerID   string    `json:"ownerId"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingOwner = errors.New("message has no owner")

// NewRecordsChangedMessage creates a change message sent by origin.
func NewRecordsChangedMessage(ownerID, origin string) *RecordsChangedMessage {
	return &RecordsChangedMessage{
		OwnerID:   ownerID,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordsChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordsChangedMessageFromJSON decodes a change message. A message
// without an owner is rejected.
func RecordsChangedMessageFromJSON(data []byte) (*RecordsChangedMessage, error) {
	var msg RecordsChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, errMissingOwner
	}
	return &msg, nil
}
