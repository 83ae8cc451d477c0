// Package txn defines transaction requests and their lifecycle.
package txn

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction request.
type Status string

const (
	StatusReceived  Status = "received"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Data is the wire payload handed to the wallet collaborator verbatim.
// A plain transfer sets Amount (yoctoNEAR) and Receiver; a function call
// sets ReceiverID, MethodName, Args, Gas and Deposit. The relay layer
// never alters amounts or recipients.
type Data struct {
	// Transfer fields.
	Amount   string `json:"amount,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	Method   string `json:"method,omitempty"`

	// Function call fields.
	ReceiverID string          `json:"receiverId,omitempty"`
	MethodName string          `json:"methodName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Gas        string          `json:"gas,omitempty"`
	Deposit    string          `json:"deposit,omitempty"`

	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata carries display hints that never reach the wallet call.
type Metadata struct {
	OriginalAmount string `json:"originalAmount,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// IsTransfer reports whether the payload is a plain value transfer.
func (d Data) IsTransfer() bool {
	return d.Amount != "" && d.MethodName == ""
}

// TargetAccount returns the account the transaction is addressed to.
func (d Data) TargetAccount() string {
	if d.ReceiverID != "" {
		return d.ReceiverID
	}
	return d.Receiver
}

// Validate checks the payload makes sense for exactly one transaction shape.
func (d Data) Validate() error {
	if d.IsTransfer() {
		if d.Receiver == "" {
			return fmt.Errorf("transfer is missing a receiver")
		}
		if _, ok := parseYocto(d.Amount); !ok {
			return fmt.Errorf("transfer amount %q is not a valid yocto value", d.Amount)
		}
		return nil
	}
	if d.MethodName == "" {
		return fmt.Errorf("transaction is neither a transfer nor a function call")
	}
	if d.ReceiverID == "" {
		return fmt.Errorf("function call is missing receiverId")
	}
	return nil
}

// Request is one request to sign something. TransactionID is the sole
// correlation key between the request and its eventual result.
type Request struct {
	TransactionID string `json:"transactionId"`
	SessionID     string `json:"sessionId,omitempty"`
	Data          Data   `json:"transactionData"`
	Status        Status `json:"status"`
}

// NewRequest wraps a payload with a fresh transaction ID.
func NewRequest(sessionID string, data Data) *Request {
	return &Request{
		TransactionID: "tx-" + uuid.New().String(),
		SessionID:     sessionID,
		Data:          data,
		Status:        StatusReceived,
	}
}

// DisplayAmount returns the human-scale amount for UI strings.
func (r *Request) DisplayAmount() string {
	if r.Data.Metadata != nil && r.Data.Metadata.OriginalAmount != "" {
		return r.Data.Metadata.OriginalAmount
	}
	if r.Data.Amount != "" {
		if near, err := YoctoToNEAR(r.Data.Amount); err == nil {
			return near
		}
	}
	return r.Data.Amount
}
