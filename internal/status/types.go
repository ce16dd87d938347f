package status

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the result of one user's sync attempt within a pass.
type UserStatus string

const (
	// UserStatusOK means the sync ran and its outcome was stored. Rate
	// limiting and budget exhaustion count as ok.
	UserStatusOK UserStatus = "ok"

	// UserStatusSyncFailed means the sync hit an unexpected error. The user
	// was backed off for one window.
	UserStatusSyncFailed UserStatus = "sync_failed"

	// UserStatusUpdateFailed means the final state write failed.
	UserStatusUpdateFailed UserStatus = "update_failed"
)

// UserResult is one entry of a pass result.
type UserResult struct {
	UserID uuid.UUID  `json:"userId"`
	Status UserStatus `json:"status"`
}

// PassReport summarises one pass over eligible users.
type PassReport struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Eligible   int          `json:"eligible"`
	Results    []UserResult `json:"results"`
}

// Counts returns the number of results per status.
func (r *PassReport) Counts() map[UserStatus]int {
	counts := make(map[UserStatus]int, 3)
	if r == nil {
		return counts
	}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// UserSyncStatus is the externally visible sync status of one user. It
// carries no error detail; failures are only visible in server logs.
type UserSyncStatus struct {
	UserID        uuid.UUID  `json:"userId"`
	InProgress    bool       `json:"inProgress"`
	LastSyncAt    *time.Time `json:"lastSyncAt,omitempty"`
	NextAllowedAt *time.Time `json:"nextAllowedAt,omitempty"`
}
