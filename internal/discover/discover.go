// Package discover builds the ranked candidate pages served to the swipe
// deck: graph lookups, seen-set filtering, hydration, and preference
// ranking.
package discover

import (
	"context"

	"github.com/whycore/basefriends/internal/config"
	"github.com/whycore/basefriends/internal/logging"
	"github.com/whycore/basefriends/internal/model"
	"github.com/whycore/basefriends/internal/neynar"
)

// History exposes the persisted viewer state the pipeline reads. It is
// never written from here.
type History interface {
	SeenFIDs(ctx context.Context, viewerFID int64) (map[int64]struct{}, error)
	GetPreferences(ctx context.Context, fid int64) (model.Preferences, error)
}

// Service runs the candidate pipeline.
type Service struct {
	client  neynar.Client
	history History
	cfg     config.CandidatesConfig
}

func New(client neynar.Client, history History, cfg config.CandidatesConfig) *Service {
	return &Service{client: client, history: history, cfg: cfg}
}

// strategy produces up to remaining candidate FIDs for the viewer. A
// strategy that fails upstream returns zero results, never an error; the
// combinator just moves on to the next one.
type strategy func(ctx context.Context, viewerFID int64, exclude map[int64]struct{}, remaining int) []int64

// Candidates returns up to limit ranked candidates for the viewer,
// excluding the viewer and every FID they already acted on. An empty list
// signals no more candidates. Persistence failures degrade to empty
// defaults; only a hydration failure surfaces as an error.
func (s *Service) Candidates(ctx context.Context, viewerFID int64, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	seen, err := s.history.SeenFIDs(ctx, viewerFID)
	if err != nil {
		logging.Warn("seen-set load failed, proceeding unfiltered", map[string]any{"fid": viewerFID, "error": err.Error()})
		seen = map[int64]struct{}{}
	}
	exclude := make(map[int64]struct{}, len(seen)+1)
	for fid := range seen {
		exclude[fid] = struct{}{}
	}
	if viewerFID > 0 {
		exclude[viewerFID] = struct{}{}
	}

	fids := s.fetchFIDs(ctx, viewerFID, exclude, limit)
	if len(fids) == 0 {
		return []model.Candidate{}, nil
	}

	candidates, err := s.hydrate(ctx, fids, viewerFID)
	if err != nil {
		return nil, err
	}

	// Hydration only returns requested FIDs, but the seen-set exclusion is
	// an invariant, so filter the service's answer too.
	kept := candidates[:0]
	for _, c := range candidates {
		if _, ok := seen[c.FID]; ok {
			continue
		}
		if c.FID == viewerFID {
			continue
		}
		kept = append(kept, c)
	}
	candidates = kept

	prefs, err := s.history.GetPreferences(ctx, viewerFID)
	if err != nil {
		logging.Warn("preferences load failed, skipping ranking", map[string]any{"fid": viewerFID, "error": err.Error()})
		prefs = model.Preferences{FID: viewerFID}
	}
	candidates = ScoreAndRank(candidates, prefs)

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// fetchFIDs runs the ordered strategies until the quota is filled:
// following, then followers, then the static seed list. Each strategy sees
// the exclusion set grown by earlier picks, so the result is deduplicated
// by construction.
func (s *Service) fetchFIDs(ctx context.Context, viewerFID int64, exclude map[int64]struct{}, n int) []int64 {
	strategies := []strategy{s.fromFollowing, s.fromFollowers, s.fromSeeds}

	picked := make([]int64, 0, n)
	for _, strat := range strategies {
		if len(picked) >= n {
			break
		}
		for _, fid := range strat(ctx, viewerFID, exclude, n-len(picked)) {
			exclude[fid] = struct{}{}
			picked = append(picked, fid)
		}
	}
	return picked
}

func (s *Service) fromFollowing(ctx context.Context, viewerFID int64, exclude map[int64]struct{}, remaining int) []int64 {
	if viewerFID <= 0 {
		return nil
	}
	users, err := s.client.FetchFollowing(ctx, viewerFID, s.cfg.FollowingFetch)
	if err != nil {
		logging.Warn("following lookup failed", map[string]any{"fid": viewerFID, "error": err.Error()})
		return nil
	}
	return filterFIDs(candidateFIDs(users), exclude, remaining)
}

func (s *Service) fromFollowers(ctx context.Context, viewerFID int64, exclude map[int64]struct{}, remaining int) []int64 {
	if viewerFID <= 0 {
		return nil
	}
	users, err := s.client.FetchFollowers(ctx, viewerFID, s.cfg.FollowingFetch)
	if err != nil {
		logging.Warn("followers lookup failed", map[string]any{"fid": viewerFID, "error": err.Error()})
		return nil
	}
	return filterFIDs(candidateFIDs(users), exclude, remaining)
}

func (s *Service) fromSeeds(ctx context.Context, viewerFID int64, exclude map[int64]struct{}, remaining int) []int64 {
	return filterFIDs(s.cfg.SeedFIDs, exclude, remaining)
}

func candidateFIDs(users []model.Candidate) []int64 {
	out := make([]int64, 0, len(users))
	for _, u := range users {
		out = append(out, u.FID)
	}
	return out
}

// filterFIDs drops excluded and non-positive FIDs, dedups within the batch,
// and caps the result at remaining.
func filterFIDs(fids []int64, exclude map[int64]struct{}, remaining int) []int64 {
	out := make([]int64, 0, remaining)
	local := make(map[int64]struct{}, len(fids))
	for _, fid := range fids {
		if len(out) >= remaining {
			break
		}
		if fid <= 0 {
			continue
		}
		if _, ok := exclude[fid]; ok {
			continue
		}
		if _, ok := local[fid]; ok {
			continue
		}
		local[fid] = struct{}{}
		out = append(out, fid)
	}
	return out
}

// hydrate bulk-fetches full profiles. Some endpoint variants reject the
// viewer_fid parameter, so a failed lookup is retried once without it.
func (s *Service) hydrate(ctx context.Context, fids []int64, viewerFID int64) ([]model.Candidate, error) {
	candidates, err := s.client.FetchBulkUsers(ctx, fids, viewerFID)
	if err == nil {
		return candidates, nil
	}
	logging.Warn("bulk hydration failed, retrying without viewer context", map[string]any{"error": err.Error()})
	return s.client.FetchBulkUsers(ctx, fids, 0)
}
