package api

import "github.com/whycore/basefriends/internal/model"

// mockCandidates is the fixed dataset served in dev mode and as the
// last-resort fallback when every upstream source fails.
func mockCandidates() []model.Candidate {
	return []model.Candidate{
		{
			FID:            1001,
			Username:       "alice",
			DisplayName:    "Alice",
			FollowerCount:  123,
			FollowingCount: 456,
			Bio:            "Builder on Base. Exploring Farcaster.",
		},
		{
			FID:            1002,
			Username:       "bob",
			DisplayName:    "Bob",
			FollowerCount:  78,
			FollowingCount: 90,
			Bio:            "Full-stack dev. Networking for collabs.",
		},
		{
			FID:            1003,
			Username:       "carol",
			DisplayName:    "Carol",
			FollowerCount:  42,
			FollowingCount: 21,
			Bio:            "Designer. Open to new projects.",
		},
	}
}
