// Package push contains the public domain models and contracts for the
// push gateway: messages, platforms, dispatch outcomes and the channel
// client interface the upstream provider integrations implement.
package push

import (
	"errors"
	"fmt"
	"time"
)

// Platform identifies the upstream push channel a device token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformHuawei  Platform = "huawei"
)

// Platforms lists every channel the gateway knows how to dispatch to.
var Platforms = []Platform{PlatformIOS, PlatformAndroid, PlatformHuawei}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformHuawei:
		return true
	}
	return false
}

// Priority controls how aggressively the provider should deliver.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Body carries the user-visible and transport-level content of a message.
// Extras are forwarded verbatim as the provider's custom data payload.
type Body struct {
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	Badge       *int              `json:"badge,omitempty"`
	Category    string            `json:"category,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"`
	Expiry      time.Time         `json:"expiry,omitempty"`
}

// Message is a single notification addressed to a user. When ActivationID
// is set the message targets exactly the device bound to that activation;
// otherwise it fans out to every device registered for the user.
type Message struct {
	UserID       string   `json:"user_id"`
	ActivationID string   `json:"activation_id,omitempty"`
	Body         Body     `json:"body"`
	Silent       bool     `json:"silent,omitempty"`
	Personal     bool     `json:"personal,omitempty"`
	Encrypted    bool     `json:"encrypted,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
}

// ErrInvalidMessage is wrapped by every message validation failure.
var ErrInvalidMessage = errors.New("invalid push message")

// Validate checks the caller-supplied shape of the message. A failure here
// aborts the whole send call before anything is dispatched.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if m.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidMessage)
	}
	if !m.Silent && m.Body.Title == "" && m.Body.Text == "" {
		return fmt.Errorf("%w: non-silent message needs a title or text", ErrInvalidMessage)
	}
	if m.Priority != "" && m.Priority != PriorityHigh && m.Priority != PriorityNormal {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidMessage, m.Priority)
	}
	return nil
}
