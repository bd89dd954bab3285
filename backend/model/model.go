package model

import (
	"errors"
	"time"
)

// BroadcastMarker addresses every registered participant except the sender.
const BroadcastMarker = "@all"

// AddressPrefix is an optional prefix of a direct recipient, e.g. "@bob".
const AddressPrefix = "@"

// ErrNameTaken is reported by registries for a name that is already in use.
var ErrNameTaken = errors.New("name is already registered")

type Participant struct {
	Name     string    `json:"name"`
	Token    string    `json:"-"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is immutable once routed; the same value lands in several mailboxes.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Live event types pushed to observers.
const (
	EventTypeMessage = "message"
	EventTypeJoin    = "join"
	EventTypeLeave   = "leave"
)

type Event struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func JoinEvent(name string) Event {
	return Event{Type: EventTypeJoin, Name: name, Timestamp: Now()}
}

func LeaveEvent(name string) Event {
	return Event{Type: EventTypeLeave, Name: name, Timestamp: Now()}
}

func MessageEvent(msg Message) Event {
	return Event{
		Type:      EventTypeMessage,
		From:      msg.From,
		To:        msg.To,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
}

// Now returns wall clock time in unix milliseconds, the unit of every timestamp on the wire.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Requests and responses of the HTTP API.
type (
	RegisterRequest struct {
		Name string `json:"name" validate:"required"`
	}

	RegisterResponse struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}

	SendRequest struct {
		To      string `json:"to" validate:"required"`
		Content string `json:"content" validate:"required"`
	}

	SendResponse struct {
		ID string `json:"id"`
		To string `json:"to"`
	}

	PollResponse struct {
		Messages []Message `json:"messages"`
	}

	UsersResponse struct {
		Users []string `json:"users"`
	}

	KickRequest struct {
		Name string `json:"name" validate:"required"`
	}

	KickResponse struct {
		OK     bool   `json:"ok"`
		Kicked string `json:"kicked"`
	}

	KickAllResponse struct {
		OK     bool     `json:"ok"`
		Kicked []string `json:"kicked"`
	}

	AdminSendRequest struct {
		From    string `json:"from"`
		To      string `json:"to" validate:"required"`
		Content string `json:"content" validate:"required"`
	}

	OKResponse struct {
		OK bool `json:"ok"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)
