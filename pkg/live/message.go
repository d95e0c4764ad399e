// Package live implements the live validation protocol spoken over the
// local server's WebSocket, and a client for it.
//
// Every client message carries an id that the server echoes on its reply.
// Messages the server pushes on its own, such as the hello on connect and
// auto-save notices, carry no id.
package live

import (
	"github.com/tvinspection/tvinspect/pkg/validate"
)

// Message types.
const (
	// client → server
	TypeSet       = "set"
	TypePersonnel = "personnel"
	TypeValidate  = "validate"

	// server → client
	TypeHello  = "hello"
	TypeField  = "field"
	TypeReport = "report"
	TypeSaved  = "saved"
	TypeError  = "error"
)

// Personnel operations.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpSet    = "set"
)

type Message struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Section string `json:"section,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   any    `json:"value"`
	Op      string `json:"op,omitempty"`
	Index   *int   `json:"index,omitempty"`

	// Path is "section.field" or "ca_personnel.N.field" on field replies.
	Path string `json:"path,omitempty"`
	// Message is the field's validation message, or the error text.
	Message string `json:"message,omitempty"`

	Report     *validate.Report           `json:"report,omitempty"`
	Completion *validate.CompletionStatus `json:"completion,omitempty"`

	DraftID  string `json:"draft_id,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
}

func Index(i int) *int {
	return &i
}
