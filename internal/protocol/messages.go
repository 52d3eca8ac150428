// Package protocol defines the WebSocket message types exchanged with chat
// clients. Messages are JSON with a "type" discriminator; the rest of the
// payload is decoded into a per-type struct.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeHello      = "hello"
	TypeStart      = "start"
	TypeRegister   = "register"
	TypeSearch     = "search"
	TypeStop       = "stop"
	TypeReport     = "report"
	TypePremium    = "premium"
	TypeBuy        = "buy"
	TypeText       = "text"
	TypeAdminBan   = "admin_ban"
	TypeAdminUnban = "admin_unban"
	TypePing       = "ping"
)

// Server -> Client message types.
const (
	TypeNotice  = "notice"
	TypeChat    = "chat"
	TypeTyping  = "typing"
	TypeInvoice = "invoice"
	TypeError   = "error"
	TypePong    = "pong"
)

// Envelope captures the type discriminator plus the raw payload for
// deferred decoding into the concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON extracts the "type" field and retains the full raw bytes.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server messages
// ---------------------------------------------------------------------------

// HelloMsg binds the connection to a user identity. It must be the first
// message on a new connection.
type HelloMsg struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// StartMsg requests the welcome text and bootstraps the profile.
type StartMsg struct {
	Type string `json:"type"`
}

// RegisterMsg begins (or restarts) the registration dialogue.
type RegisterMsg struct {
	Type string `json:"type"`
}

// SearchMsg asks the pairing engine for a partner.
type SearchMsg struct {
	Type string `json:"type"`
}

// StopMsg leaves the current chat or cancels a pending search.
type StopMsg struct {
	Type string `json:"type"`
}

// ReportMsg files an abuse report against the current chat partner.
type ReportMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PremiumMsg asks for the premium subscription pitch.
type PremiumMsg struct {
	Type string `json:"type"`
}

// BuyMsg requests a premium invoice.
type BuyMsg struct {
	Type string `json:"type"`
}

// TextMsg carries free text: a registration answer while the dialogue is
// open, chat text otherwise.
type TextMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AdminBanMsg sets the banned flag on a user. Admin identity required.
type AdminBanMsg struct {
	Type     string `json:"type"`
	TargetID int64  `json:"target_id"`
}

// AdminUnbanMsg clears the banned flag on a user. Admin identity required.
type AdminUnbanMsg struct {
	Type     string `json:"type"`
	TargetID int64  `json:"target_id"`
}

// PingMsg is a client keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client messages
// ---------------------------------------------------------------------------

// NoticeMsg is a status, prompt, or policy message shown to the user.
type NoticeMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatMsg is relayed partner text.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TypingMsg shows the partner's typing indicator.
type TypingMsg struct {
	Type string `json:"type"`
}

// InvoiceMsg carries a pending premium invoice for the client to pay.
type InvoiceMsg struct {
	Type        string `json:"type"`
	InvoiceID   string `json:"invoice_id"`
	AmountMinor int    `json:"amount_minor"`
}

// ErrorMsg reports a protocol-level error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage decodes raw WebSocket bytes into a typed client
// message. Unknown or server-only types are an error.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeHello:
		var m HelloMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStart:
		var m StartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSearch:
		var m SearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStop:
		var m StopMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePremium:
		var m PremiumMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeBuy:
		var m BuyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeText:
		var m TextMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminBan:
		var m AdminBanMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminUnban:
		var m AdminUnbanMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage marshals a server message struct and forces the "type"
// field to msgType.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal server message: %w", err)
	}
	return out, nil
}
