// Package conversation persists per-conversation dialogue state: the current
// stage, the last turn pair, captured structured detail, the human-handoff
// flag, and the advisory turn lock.
package conversation

import (
	"context"
	"errors"
	"time"
)

// Key is the stable identity of an end-user-to-route conversation.
type Key struct {
	RouteID  string
	SenderID string
}

// String renders the key for logging.
func (k Key) String() string {
	return k.RouteID + ":" + k.SenderID
}

// Record is the durable state for one conversation key. Stage and
// CapturedDetail use the empty string for "not yet set"; Stage is only ever
// empty or a stage name that was declared by the route's script at the time
// it was written.
type Record struct {
	ID              string    `json:"id"`
	RouteID         string    `json:"route_id"`
	SenderID        string    `json:"sender_id"`
	DisplayName     string    `json:"display_name,omitempty"`
	Stage           string    `json:"stage,omitempty"`
	LastInboundText string    `json:"last_inbound_text,omitempty"`
	LastReplyText   string    `json:"last_reply_text,omitempty"`
	CapturedDetail  string    `json:"captured_detail,omitempty"`
	HumanHandoff    bool      `json:"human_handoff"`
	LockedUntil     time.Time `json:"locked_until,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Key returns the record's conversation key.
func (r Record) Key() Key {
	return Key{RouteID: r.RouteID, SenderID: r.SenderID}
}

var (
	// ErrHandedOff means the conversation is flagged for manual handling and
	// the automated pipeline must not run.
	ErrHandedOff = errors.New("conversation handed off to human")
	// ErrTurnLocked means another turn holds the advisory lock.
	ErrTurnLocked = errors.New("conversation turn locked")
	// ErrNotFound means no record exists for the key or id.
	ErrNotFound = errors.New("conversation not found")
)

// TurnUpdate is the single durable write at the end of a turn. Empty Stage or
// CapturedDetail keep the stored value; a turn that produced neither never
// erases what an earlier turn captured.
type TurnUpdate struct {
	Stage          string
	CapturedDetail string
	InboundText    string
	ReplyText      string
}

// Store is the conversation state storage contract. All mutation is
// single-writer-per-key by construction of the advisory lock.
type Store interface {
	// AcquireTurn loads (creating if absent) the record for key and takes the
	// advisory lock for lockTTL. Returns ErrHandedOff if the conversation is
	// flagged for manual handling, ErrTurnLocked if the lock is held.
	AcquireTurn(ctx context.Context, key Key, displayName string, lockTTL time.Duration) (Record, error)

	// PersistTurn applies the turn's state update and releases the lock.
	PersistTurn(ctx context.Context, key Key, update TurnUpdate) (Record, error)

	// ReleaseLock clears the advisory lock without a state update; used when a
	// turn aborts before producing a reply.
	ReleaseLock(ctx context.Context, key Key) error

	// RecordInbound appends inbound text to the record's history without
	// taking the lock or touching any other state. Used while the human
	// handoff flag is set: the automated pipeline stands down, but operators
	// still need to see what the user said.
	RecordInbound(ctx context.Context, key Key, displayName, text string) (Record, error)

	Get(ctx context.Context, key Key) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	ListByRoute(ctx context.Context, routeID string) ([]Record, error)

	// SetHandoff toggles the human-handoff flag. Refused with ErrTurnLocked
	// while a turn holds the advisory lock.
	SetHandoff(ctx context.Context, key Key, handoff bool) (Record, error)

	// Delete removes the record. Refused with ErrTurnLocked while locked.
	Delete(ctx context.Context, key Key) error
}
