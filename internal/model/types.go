package model

import "time"

// Candidate represents a Farcaster profile shown in the swipe deck.
// Constructed per request from hydrated Neynar data, never persisted.
type Candidate struct {
	FID            int64  `json:"fid"`
	Username       string `json:"username,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	PfpURL         string `json:"pfpUrl,omitempty"`
	Bio            string `json:"bio,omitempty"`
	FollowerCount  int    `json:"followerCount,omitempty"`
	FollowingCount int    `json:"followingCount,omitempty"`
	// MatchScore is the normalized 0-100 preference score. Only set when the
	// viewer declared interests or skills.
	MatchScore *int `json:"matchScore,omitempty"`
	RawScore   int  `json:"-"`
}

// Preferences are the viewer's declared onboarding keywords.
// Interests and Skills are free-text comma-separated lists.
type Preferences struct {
	FID       int64
	Headline  string
	Interests string
	Skills    string
	UpdatedAt time.Time
}

// Signer statuses.
const (
	SignerActive  = "active"
	SignerExpired = "expired"
	SignerRevoked = "revoked"
)

// Signer is a credential authorizing write actions (follow) performed on
// the viewer's behalf via Neynar.
type Signer struct {
	FID        int64
	SignerUUID string
	PublicKey  string
	Status     string
	ExpiresAt  *time.Time
	UpdatedAt  time.Time
}

// Swipe action values.
const (
	ActionFollow = "follow"
	ActionSkip   = "skip"
)

// Swipe records one viewer decision about a candidate.
type Swipe struct {
	FromFID   int64
	ToFID     int64
	Action    string
	CreatedAt time.Time
}
