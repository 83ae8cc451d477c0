package txn

import (
	"fmt"
	"net/url"
)

// LaunchParams is what a launch URL can carry. SessionID is required;
// the transfer fields are optional and, when present, seed a Request
// client-side before any server round trip.
type LaunchParams struct {
	SessionID string
	Amount    string // decimal NEAR
	Receiver  string
	Purpose   string
}

// ParseLaunchURL extracts launch parameters from an approval link.
func ParseLaunchURL(raw string) (LaunchParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return LaunchParams{}, fmt.Errorf("invalid launch URL: %w", err)
	}
	return ParseLaunchQuery(u.Query())
}

// ParseLaunchQuery extracts launch parameters from query values.
// The session parameter accepts both sessionId and sessionid spellings;
// links in the wild use both.
func ParseLaunchQuery(q url.Values) (LaunchParams, error) {
	p := LaunchParams{
		SessionID: q.Get("sessionId"),
		Amount:    q.Get("amount"),
		Receiver:  q.Get("receiver"),
		Purpose:   q.Get("purpose"),
	}
	if p.SessionID == "" {
		p.SessionID = q.Get("sessionid")
	}
	if p.SessionID == "" {
		return LaunchParams{}, fmt.Errorf("launch URL is missing sessionId")
	}
	return p, nil
}

// SeedsTransaction reports whether the params carry enough to build a
// transfer request locally.
func (p LaunchParams) SeedsTransaction() bool {
	return p.Amount != "" && p.Receiver != ""
}

// Request builds a transfer Request from the launch parameters. The
// decimal amount is converted to yoctoNEAR; the original value is kept
// as display metadata.
func (p LaunchParams) Request() (*Request, error) {
	if !p.SeedsTransaction() {
		return nil, fmt.Errorf("launch parameters do not describe a transaction")
	}
	yocto, err := NEARToYocto(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("launch amount: %w", err)
	}
	return NewRequest(p.SessionID, Data{
		Amount:   yocto,
		Receiver: p.Receiver,
		Purpose:  p.Purpose,
		Method:   "transfer",
		Metadata: &Metadata{OriginalAmount: p.Amount, Currency: "NEAR"},
	}), nil
}
