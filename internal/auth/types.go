package auth

import "time"

// Profile is the authorization record of one registered identity.
type Profile struct {
	IdentityID       string     `json:"identity_id"`
	Role             Role       `json:"role"`
	IsActive         bool       `json:"is_active"`
	SuspendedAt      *time.Time `json:"suspended_at,omitempty"`
	SuspendedBy      *string    `json:"suspended_by,omitempty"`
	SuspensionReason *string    `json:"suspension_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Consistent reports whether the active flag agrees with the suspension stamp.
func (p Profile) Consistent() bool {
	return p.IsActive == (p.SuspendedAt == nil)
}

// Suspension describes a suspend (non-nil At) or reinstate (nil At) mutation.
type Suspension struct {
	At     *time.Time
	By     *string
	Reason *string
}

// ProfileCounts summarises the profile table.
type ProfileCounts struct {
	Total          int `json:"total_users"`
	Active         int `json:"active_users"`
	Suspended      int `json:"suspended_users"`
	Administrators int `json:"admin_users"`
}

// ContentTotals counts content that has not been deleted.
type ContentTotals struct {
	Polls    int `json:"total_polls"`
	Comments int `json:"total_comments"`
	Votes    int `json:"total_votes"`
}

// IdentityStats is the administrator overview.
type IdentityStats struct {
	ProfileCounts
	ContentTotals
}
