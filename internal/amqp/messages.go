package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record names the kind of record a change touched.
type Record string

// Op names the mutation that happened.
type Op string

const (
	RecordTransaction Record = "transaction"
	RecordBudget      Record = "budget"
	RecordLedger      Record = "ledger"
)

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpImport Op = "import"
)

// LedgerChangedMessage tells consumers that an owner's ledger changed.
// It carries identifiers only; consumers reload what they need.
type LedgerChangedMessage struct {
	OwnerID   string    `json:"ownerId"`
	Record    Record    `json:"record"`
	RecordID  string    `json:"recordId,omitempty"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(ownerID string, record Record, recordID string, op Op) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		OwnerID:   ownerID,
		Record:    record,
		RecordID:  recordID,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and checks it names an owner.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("ledger changed message without owner")
	}
	return &msg, nil
}
