package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	werrors "github.com/nearobot/wallet/internal/errors"
	"github.com/nearobot/wallet/internal/retry"
	"github.com/nearobot/wallet/internal/store"
)

const maxUpstreamBody = 1 << 20

// Handlers holds dependencies for the bridge HTTP handlers.
type Handlers struct {
	store         *store.Store
	upstreamURL   string
	walletBaseURL string
	httpClient    *http.Client
	retryCfg      retry.Config
	logger        zerolog.Logger
}

// NewHandlers creates the bridge handlers. upstreamURL is the relay's own
// HTTP base; walletBaseURL is where humans open approval links.
func NewHandlers(st *store.Store, upstreamURL, walletBaseURL string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:         st,
		upstreamURL:   upstreamURL,
		walletBaseURL: walletBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		retryCfg: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Backoff:     retry.Exponential,
			Jitter:      true,
		},
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// SessionTransaction handles GET /session/:id/transaction. It reads the
// store directly and distinguishes a missing session from a session with
// nothing queued.
func (h *Handlers) SessionTransaction(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	sess, err := h.store.GetSession(sessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("session lookup failed")
		return fiber.ErrInternalServerError
	}
	if sess == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"session_not_found", "Not Found",
			"Session not found: "+sessionID)
	}

	resp := SessionTransactionResponse{
		SessionID: sessionID,
		Status:    sess.Status,
	}

	queued, err := h.store.GetQueuedTransaction(sessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("queued transaction lookup failed")
		return fiber.ErrInternalServerError
	}
	if queued == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"no_transaction", "Not Found",
			"No transaction queued for session: "+sessionID)
	}

	resp.TransactionID = queued.TransactionID
	resp.TransactionData = &queued.Data
	return c.JSON(resp)
}

// SendLink handles GET /api/send?sessionid=… It fetches the session's
// queued transaction from the relay and hands back the wallet URL the
// producer forwards to the human.
func (h *Handlers) SendLink(c *fiber.Ctx) error {
	sessionID := c.Query("sessionid")
	if sessionID == "" {
		sessionID = c.Query("sessionId")
	}
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ProblemDetail{
			Type:    "missing_sessionid",
			Title:   "Bad Request",
			Status:  fiber.StatusBadRequest,
			Detail:  "Missing required parameter: sessionid",
			Example: "/api/send/?sessionid=your-session-id",
		})
	}
	return h.sendLink(c, sessionID)
}

// SendLinkPost handles POST /api/send with {"sessionId": "…"}.
func (h *Handlers) SendLinkPost(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ProblemDetail{
			Type:    "missing_sessionid",
			Title:   "Bad Request",
			Status:  fiber.StatusBadRequest,
			Detail:  "Missing required field: sessionId",
			Example: `{ "sessionId": "your-session-id" }`,
		})
	}
	return h.sendLink(c, req.SessionID)
}

func (h *Handlers) sendLink(c *fiber.Ctx, sessionID string) error {
	upstream, status, err := h.fetchSession(c.Context(), sessionID)
	if err != nil {
		// The relay being unreachable is an availability problem, never a
		// not-found.
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("upstream fetch failed")
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"relay_unavailable", "Service Unavailable",
			"Could not fetch session data. Make sure the relay server is running.")
	}
	if status == fiber.StatusNotFound {
		return problemResponse(c, fiber.StatusNotFound,
			"session_not_found", "Not Found",
			"Session not found or no transaction data. Make sure the session was created with transaction data.")
	}
	if status != fiber.StatusOK {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"relay_unavailable", "Service Unavailable",
			fmt.Sprintf("Relay returned unexpected status %d", status))
	}

	walletURL := h.walletBaseURL + "?sessionId=" + url.QueryEscape(sessionID)

	return c.JSON(SendLinkResponse{
		Success:         true,
		SessionID:       sessionID,
		WalletURL:       walletURL,
		TransactionData: upstream.TransactionData,
		SessionStatus:   upstream.Status,
		Message:         "Transaction ready. User should visit wallet URL to complete.",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// fetchSession retrieves the session's queued transaction from the relay
// with bounded retries on connectivity failures.
func (h *Handlers) fetchSession(ctx context.Context, sessionID string) (*SessionTransactionResponse, int, error) {
	target := fmt.Sprintf("%s/session/%s/transaction", h.upstreamURL, url.PathEscape(sessionID))

	var resp SessionTransactionResponse
	var status int

	err := retry.Do(ctx, h.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}

		res, err := h.httpClient.Do(req)
		if err != nil {
			return werrors.New(werrors.KindConnectivity, "relay unreachable", err)
		}
		defer res.Body.Close()

		status = res.StatusCode
		if res.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(res.Body, maxUpstreamBody))
			return nil
		}

		body, err := io.ReadAll(io.LimitReader(res.Body, maxUpstreamBody))
		if err != nil {
			return werrors.New(werrors.KindConnectivity, "relay response truncated", err)
		}
		return json.Unmarshal(body, &resp)
	})
	if err != nil {
		return nil, 0, err
	}
	return &resp, status, nil
}
