package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Operations carried by a MutationMessage.
const (
	OpCreated       = "created"
	OpUpdated       = "updated"
	OpDeleted       = "deleted"
	OpCategorized   = "categorized"
	OpProfileChange = "profile_changed"
)

var ErrInvalidMessage = errors.New("invalid mutation message")

// MutationMessage announces that a user's ledger changed. It carries ids and
// affected months only; consumers reload the data they need.
type MutationMessage struct {
	UserID         string    `json:"user_id"`
	Operation      string    `json:"operation"`
	Months         []string  `json:"months"`
	TransactionIDs []string  `json:"transaction_ids"`
	InstallmentID  string    `json:"installment_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewMutationMessage(userID, operation string, months, ids []string) *MutationMessage {
	return &MutationMessage{
		UserID:         userID,
		Operation:      operation,
		Months:         months,
		TransactionIDs: ids,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *MutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationMessageFromJSON decodes and validates a message body.
func MutationMessageFromJSON(data []byte) (*MutationMessage, error) {
	var msg MutationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.Operation == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
