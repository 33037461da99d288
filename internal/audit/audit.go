// Package audit appends security events. Events are write-only: nothing in
// the service reads them back.
package audit

import (
	"context"
	"errors"
	"time"
)

const (
	ActionLogin           = "login"
	ActionLogout          = "logout"
	ActionPasswordChange  = "password_change"
	ActionAccountLocked   = "account_locked"
	ActionSessionRevoked  = "session_revoked"
	ActionSessionsRevoked = "sessions_revoked"

	EntityUser    = "user"
	EntitySession = "session"
)

type Event struct {
	UserID    *string        `json:"userId,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  *string        `json:"entityId,omitempty"`
	Changes   map[string]any `json:"changes,omitempty"`
	IPAddress *string        `json:"ipAddress,omitempty"`
	UserAgent *string        `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Multi writes every event to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, recorder := range m {
		if err := recorder.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
