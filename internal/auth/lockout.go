package auth

import "time"

const (
	MaxFailedLoginAttempts = 5
	LockoutDuration        = 30 * time.Minute
)

// LockoutState is the failed-attempt counter and lock expiry of one account.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// IsLocked reports whether the lock is set and still in the future at now.
func IsLocked(state LockoutState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// RecordFailure counts one more failure. Reaching the threshold sets a fresh
// lock; below it the existing lock value is left as is.
func RecordFailure(state LockoutState, now time.Time) LockoutState {
	next := LockoutState{
		FailedAttempts: state.FailedAttempts + 1,
		LockedUntil:    state.LockedUntil,
	}
	if next.FailedAttempts >= MaxFailedLoginAttempts {
		until := now.UTC().Add(LockoutDuration)
		next.LockedUntil = &until
	}
	return next
}

func RecordSuccess() LockoutState {
	return LockoutState{}
}
