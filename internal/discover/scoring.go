package discover

import (
	"math"
	"sort"
	"strings"

	"github.com/whycore/basefriends/internal/model"
	"github.com/whycore/basefriends/internal/util"
)

// Keyword weights. Skill matches are weighted 1.5x interest matches;
// skills are the more specific signal.
const (
	interestWeight = 2
	skillWeight    = 3
)

// ScoreAndRank scores candidates against the viewer's declared keywords
// and sorts them by raw score descending, follower count breaking ties.
// A viewer with no keywords at all gets the list back untouched, in
// upstream order and with no match scores attached.
//
// Matching is plain substring search over the lower-cased bio, username,
// and display name. Short keywords ("ai") can match inside unrelated words
// ("said"); that false positive is accepted, documented behavior.
func ScoreAndRank(candidates []model.Candidate, prefs model.Preferences) []model.Candidate {
	interests := util.SplitKeywords(prefs.Interests)
	skills := util.SplitKeywords(prefs.Skills)

	maxScore := interestWeight*len(interests) + skillWeight*len(skills)
	if maxScore == 0 {
		return candidates
	}

	for i := range candidates {
		c := &candidates[i]
		blob := strings.ToLower(c.Bio + " " + c.Username + " " + c.DisplayName)
		raw := interestWeight*countMatches(blob, interests) + skillWeight*countMatches(blob, skills)
		c.RawScore = raw
		match := int(math.Round(100 * float64(raw) / float64(maxScore)))
		c.MatchScore = &match
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RawScore != candidates[j].RawScore {
			return candidates[i].RawScore > candidates[j].RawScore
		}
		return candidates[i].FollowerCount > candidates[j].FollowerCount
	})
	return candidates
}

func countMatches(blob string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(blob, kw) {
			n++
		}
	}
	return n
}
