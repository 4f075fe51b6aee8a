package neynar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/whycore/basefriends/internal/metrics"
	"github.com/whycore/basefriends/internal/model"
)

// ErrNotFound is returned when a lookup resolves no user.
var ErrNotFound = errors.New("neynar: user not found")

// Client defines the Neynar operations the service uses.
type Client interface {
	FetchBulkUsers(ctx context.Context, fids []int64, viewerFID int64) ([]model.Candidate, error)
	FetchFollowing(ctx context.Context, fid int64, limit int) ([]model.Candidate, error)
	FetchFollowers(ctx context.Context, fid int64, limit int) ([]model.Candidate, error)
	LookupUserByAddress(ctx context.Context, address string) (model.Candidate, error)
	FollowUser(ctx context.Context, signerUUID string, targetFID int64) error
}

// HTTPClient is a direct client for the Neynar Farcaster API v2.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.neynar.com"
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("NEYNAR_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("NEYNAR_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

// HasKey reports whether the client holds an API key. Without one the
// handlers fall back to the mock dataset.
func (c *HTTPClient) HasKey() bool { return c.apiKey != "" }

func (c *HTTPClient) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// rawUser is the Neynar v2 user payload shape.
type rawUser struct {
	FID            int64  `json:"fid"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	PfpURL         string `json:"pfp_url"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	Profile        struct {
		Bio struct {
			Text string `json:"text"`
		} `json:"bio"`
	} `json:"profile"`
}

func (u rawUser) candidate() model.Candidate {
	return model.Candidate{
		FID:            u.FID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		PfpURL:         u.PfpURL,
		Bio:            u.Profile.Bio.Text,
		FollowerCount:  u.FollowerCount,
		FollowingCount: u.FollowingCount,
	}
}

// FetchBulkUsers hydrates candidate profiles for the given FIDs.
// viewerFID 0 omits the viewer_fid parameter; some endpoint variants reject
// it, so callers retry without it on failure.
func (c *HTTPClient) FetchBulkUsers(ctx context.Context, fids []int64, viewerFID int64) ([]model.Candidate, error) {
	if len(fids) == 0 {
		return nil, nil
	}
	if len(fids) > 100 {
		fids = fids[:100]
	}
	joined := make([]string, 0, len(fids))
	for _, fid := range fids {
		joined = append(joined, strconv.FormatInt(fid, 10))
	}
	u := fmt.Sprintf("%s/v2/farcaster/user/bulk?fids=%s", c.baseURL, url.QueryEscape(strings.Join(joined, ",")))
	if viewerFID > 0 {
		u += fmt.Sprintf("&viewer_fid=%d", viewerFID)
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, "user_bulk")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("neynar status %d", resp.StatusCode)
	}
	var raw struct {
		Users []rawUser `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(raw.Users))
	for _, ru := range raw.Users {
		out = append(out, ru.candidate())
	}
	return out, nil
}

// FetchFollowing returns profiles the given FID follows.
func (c *HTTPClient) FetchFollowing(ctx context.Context, fid int64, limit int) ([]model.Candidate, error) {
	return c.fetchFollowList(ctx, "following", fid, limit)
}

// FetchFollowers returns profiles following the given FID.
func (c *HTTPClient) FetchFollowers(ctx context.Context, fid int64, limit int) ([]model.Candidate, error) {
	return c.fetchFollowList(ctx, "followers", fid, limit)
}

func (c *HTTPClient) fetchFollowList(ctx context.Context, kind string, fid int64, limit int) ([]model.Candidate, error) {
	u := fmt.Sprintf("%s/v2/farcaster/%s?fid=%d&limit=%d", c.baseURL, kind, fid, clamp(limit, 1, 100))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, kind)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("neynar status %d", resp.StatusCode)
	}
	// Follow lists nest the user object inside each edge.
	var raw struct {
		Users []struct {
			User rawUser `json:"user"`
		} `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(raw.Users))
	for _, e := range raw.Users {
		if e.User.FID == 0 {
			continue
		}
		out = append(out, e.User.candidate())
	}
	return out, nil
}

// addressLookupPaths are tried in order; custody first, then verification
// variants. Some deployments only index one of the two.
var addressLookupPaths = []string{
	"/v2/farcaster/user/by_custody_address?custody_address=%s",
	"/v2/farcaster/user/by_verification?verification=%s",
	"/v1/farcaster/user/by_verification?address=%s",
}

// LookupUserByAddress resolves a wallet address to a Farcaster user,
// falling through the lookup variants until one answers.
func (c *HTTPClient) LookupUserByAddress(ctx context.Context, address string) (model.Candidate, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return model.Candidate{}, errors.New("empty address")
	}
	for _, path := range addressLookupPaths {
		u := c.baseURL + fmt.Sprintf(path, url.QueryEscape(address))
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		c.auth(req)
		if err := c.limiter.Wait(ctx); err != nil {
			return model.Candidate{}, err
		}
		resp, err := c.doWithRetry(ctx, req, "by_address")
		if err != nil {
			continue
		}
		cand, ok := decodeAddressLookup(resp)
		if ok {
			return cand, nil
		}
	}
	return model.Candidate{}, ErrNotFound
}

// decodeAddressLookup handles the response-shape variants the lookup
// endpoints return: {"user":{...}}, {"result":{"user":{...}}}, or a bare
// user object.
func decodeAddressLookup(resp *http.Response) (model.Candidate, bool) {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return model.Candidate{}, false
	}
	var raw struct {
		rawUser
		User   *rawUser `json:"user"`
		Result *struct {
			rawUser
			User *rawUser `json:"user"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.Candidate{}, false
	}
	switch {
	case raw.User != nil && raw.User.FID > 0:
		return raw.User.candidate(), true
	case raw.Result != nil && raw.Result.User != nil && raw.Result.User.FID > 0:
		return raw.Result.User.candidate(), true
	case raw.Result != nil && raw.Result.FID > 0:
		return raw.Result.rawUser.candidate(), true
	case raw.FID > 0:
		return raw.rawUser.candidate(), true
	}
	return model.Candidate{}, false
}

// FollowUser performs a follow write on behalf of the signer's owner.
func (c *HTTPClient) FollowUser(ctx context.Context, signerUUID string, targetFID int64) error {
	if signerUUID == "" {
		return errors.New("empty signer uuid")
	}
	body, _ := json.Marshal(map[string]any{
		"signer_uuid": signerUUID,
		"target_fids": []int64{targetFID},
	})
	u := c.baseURL + "/v2/farcaster/user/follow"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req, "follow")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("neynar status %d", resp.StatusCode)
	}
	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				metrics.IncAPIRetry(endpoint)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
