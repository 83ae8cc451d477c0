package relay

import (
	"encoding/json"
	"fmt"
)

// envelope peeks at the discriminator without committing to a shape.
type envelope struct {
	Type string `json:"type"`
}

// ServerMessage is the closed set of frames a client can receive.
type ServerMessage interface{ serverMessage() }

func (SessionInitialized) serverMessage() {}
func (SessionCreated) serverMessage()     {}
func (ProcessTransaction) serverMessage() {}
func (Ack) serverMessage()                {}
func (ErrorMessage) serverMessage()       {}
func (Pong) serverMessage()               {}
func (Unknown) serverMessage()            {}

// ClientMessage is the closed set of frames the relay endpoint can receive.
type ClientMessage interface{ clientMessage() }

func (InitSession) clientMessage()        {}
func (WalletConnected) clientMessage()    {}
func (WalletDisconnected) clientMessage() {}
func (TransactionResult) clientMessage()  {}
func (Ping) clientMessage()               {}
func (BotConnect) clientMessage()         {}
func (CreateSession) clientMessage()      {}
func (ProcessTransaction) clientMessage() {}
func (Unknown) clientMessage()            {}

// DecodeServer parses a server → client frame. A frame with an
// unrecognised type decodes to Unknown rather than an error; a frame that
// is not valid JSON, or has no type, is a protocol error.
func DecodeServer(raw []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}

	switch env.Type {
	case TypeSessionInitialized:
		var m SessionInitialized
		return m, unmarshalFrame(raw, &m)
	case TypeSessionCreated:
		var m SessionCreated
		return m, unmarshalFrame(raw, &m)
	case TypeProcessTransaction:
		var m ProcessTransaction
		return m, unmarshalFrame(raw, &m)
	case TypeWalletConnectionRecv, TypeTransactionResultRecv, TypeWalletDisconnectRecv:
		return Ack{Type: env.Type}, nil
	case TypeError:
		var m ErrorMessage
		return m, unmarshalFrame(raw, &m)
	case TypePong:
		return Pong{Type: TypePong}, nil
	default:
		return Unknown{Type: env.Type, Raw: raw}, nil
	}
}

// DecodeClient parses a client → server frame on the relay endpoint side.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}

	switch env.Type {
	case TypeInitSession:
		var m InitSession
		return m, unmarshalFrame(raw, &m)
	case TypeWalletConnected:
		var m WalletConnected
		return m, unmarshalFrame(raw, &m)
	case TypeWalletDisconnected:
		var m WalletDisconnected
		return m, unmarshalFrame(raw, &m)
	case TypeTransactionResult:
		var m TransactionResult
		return m, unmarshalFrame(raw, &m)
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeBotConnect:
		return BotConnect{Type: TypeBotConnect}, nil
	case TypeCreateSession:
		var m CreateSession
		return m, unmarshalFrame(raw, &m)
	case TypeProcessTransaction:
		var m ProcessTransaction
		return m, unmarshalFrame(raw, &m)
	default:
		return Unknown{Type: env.Type, Raw: raw}, nil
	}
}

func unmarshalFrame(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
