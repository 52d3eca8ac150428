package ws

import (
	"github.com/pairwise/anonchat/internal/protocol"
)

// Messenger adapts the Server's per-user delivery to the application
// layer's outbound message contract.
type Messenger struct {
	server *Server
}

// NewMessenger creates a Messenger delivering through server.
func NewMessenger(server *Server) *Messenger {
	return &Messenger{server: server}
}

// SendText delivers relayed chat text to a user.
func (m *Messenger) SendText(userID int64, text string) error {
	return m.send(userID, protocol.TypeChat, protocol.ChatMsg{Text: text})
}

// SendNotice delivers a status or policy message to a user.
func (m *Messenger) SendNotice(userID int64, text string) error {
	return m.send(userID, protocol.TypeNotice, protocol.NoticeMsg{Text: text})
}

// SendTyping shows the partner's typing indicator to a user.
func (m *Messenger) SendTyping(userID int64) error {
	return m.send(userID, protocol.TypeTyping, protocol.TypingMsg{})
}

// SendInvoice delivers a pending premium invoice to a user.
func (m *Messenger) SendInvoice(userID int64, invoiceID string, amountMinor int) error {
	return m.send(userID, protocol.TypeInvoice, protocol.InvoiceMsg{
		InvoiceID:   invoiceID,
		AmountMinor: amountMinor,
	})
}

func (m *Messenger) send(userID int64, msgType string, payload interface{}) error {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		return err
	}
	return m.server.SendToUser(userID, data)
}
