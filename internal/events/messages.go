// Package events publishes ledger domain events to a message broker.
package events

import (
	"encoding/json"
	"time"

	"github.com/mmynk/settleup/internal/models"
)

// SettlementCommitted is emitted after a settlement plan has been persisted.
// Consumers fetch nothing back: the message carries the full committed batch.
type SettlementCommitted struct {
	GroupID     string            `json:"groupId"`
	BatchID     string            `json:"batchId"`
	CommittedBy string            `json:"committedBy"`
	Transfers   []TransferMessage `json:"transfers"`
	Timestamp   time.Time         `json:"timestamp"`
}

// TransferMessage is one committed transfer.
type TransferMessage struct {
	SettlementID string `json:"settlementId"`
	FromUserID   string `json:"fromUserId"`
	ToUserID     string `json:"toUserId"`
	AmountMinor  int64  `json:"amountMinor"`
	Amount       string `json:"amount"`
}

// NewSettlementCommitted builds the event for one committed batch.
func NewSettlementCommitted(groupID, committedBy string, settlements []*models.Settlement) SettlementCommitted {
	msg := SettlementCommitted{
		GroupID:     groupID,
		CommittedBy: committedBy,
		Transfers:   make([]TransferMessage, len(settlements)),
		Timestamp:   time.Now().UTC(),
	}
	for i, s := range settlements {
		if msg.BatchID == "" {
			msg.BatchID = s.BatchID
		}
		msg.Transfers[i] = TransferMessage{
			SettlementID: s.ID,
			FromUserID:   s.FromUserID,
			ToUserID:     s.ToUserID,
			AmountMinor:  s.Amount.Int64(),
			Amount:       s.Amount.String(),
		}
	}
	return msg
}

// ToJSON converts the message to JSON bytes.
func (m SettlementCommitted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementCommittedFromJSON decodes a message.
func SettlementCommittedFromJSON(data []byte) (*SettlementCommitted, error) {
	var msg SettlementCommitted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
