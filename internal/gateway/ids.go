package gateway

import (
	"strings"

	"github.com/google/uuid"
)

// Wire identifiers are random with a resource prefix, so ids from different
// sessions never collide and a reader can tell what an id names.

// NewSessionID mints a session id.
func NewSessionID() string { return "sess_" + idSuffix() }

// NewItemID mints a conversation item id.
func NewItemID() string { return "item_" + idSuffix() }

// NewResponseID mints a response id.
func NewResponseID() string { return "resp_" + idSuffix() }

// NewEventID mints a server event id.
func NewEventID() string { return "evt_" + idSuffix() }

// NewCallID mints a tool call id for backends that stream calls without one.
func NewCallID() string { return "call_" + idSuffix() }

func idSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
