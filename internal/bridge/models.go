package bridge

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nearobot/wallet/internal/txn"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Example  string `json:"example,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// SessionTransactionResponse is the payload for GET /session/:id/transaction.
type SessionTransactionResponse struct {
	SessionID       string    `json:"sessionId"`
	Status          string    `json:"status"`
	TransactionID   string    `json:"transactionId,omitempty"`
	TransactionData *txn.Data `json:"transactionData,omitempty"`
}

// SendLinkResponse is the payload for GET/POST /api/send. The walletUrl is
// what the producer forwards to the human.
type SendLinkResponse struct {
	Success         bool      `json:"success"`
	SessionID       string    `json:"sessionId"`
	WalletURL       string    `json:"walletUrl"`
	TransactionData *txn.Data `json:"transactionData,omitempty"`
	SessionStatus   string    `json:"sessionStatus,omitempty"`
	Message         string    `json:"message"`
	Timestamp       string    `json:"timestamp"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
