// Package auth implements the Sign-In-With-Neynar PKCE flow that issues
// the signer credential used for follow writes.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whycore/basefriends/internal/config"
	"github.com/whycore/basefriends/internal/logging"
	"github.com/whycore/basefriends/internal/model"
)

const (
	verifierCookie  = "siwn_verifier"
	stateCookie     = "siwn_state"
	connectedCookie = "siwn_connected"
)

// ErrExchangeFailed is returned when the code exchange is rejected; the
// caller must re-authorize.
var ErrExchangeFailed = errors.New("auth: code exchange failed")

// SignerStore persists signers obtained from the exchange.
type SignerStore interface {
	UpsertSigner(ctx context.Context, s model.Signer) error
}

// Service handles the authorize redirect and the callback exchange.
type Service struct {
	cfg        config.AuthConfig
	appURL     string
	store      SignerStore
	httpClient *http.Client
}

func New(cfg config.AuthConfig, appURL string, store SignerStore) *Service {
	return &Service{
		cfg:        cfg,
		appURL:     strings.TrimRight(appURL, "/"),
		store:      store,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Challenge derives the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64URLEncode(sum[:])
}

// Start redirects the browser to the authorize URL with a fresh PKCE
// challenge; the verifier rides along in a short-lived httpOnly cookie.
func (s *Service) Start(w http.ResponseWriter, r *http.Request) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		http.Error(w, "failed to generate verifier", http.StatusInternalServerError)
		return
	}
	verifier := base64URLEncode(raw)
	state := uuid.NewString()

	u, err := url.Parse(s.cfg.AuthorizeURL)
	if err != nil {
		http.Error(w, "invalid authorize url", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", s.cfg.ClientID)
	q.Set("redirect_uri", s.cfg.RedirectURI)
	q.Set("code_challenge", Challenge(verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("scope", "openid offline_access fc:write")
	q.Set("state", state)
	u.RawQuery = q.Encode()

	http.SetCookie(w, &http.Cookie{
		Name: verifierCookie, Value: verifier,
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Secure: true,
		Path: "/", MaxAge: 10 * 60,
	})
	http.SetCookie(w, &http.Cookie{
		Name: stateCookie, Value: state,
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Secure: true,
		Path: "/", MaxAge: 10 * 60,
	})
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// tokenResponse is the exchange payload: an access token plus the signer
// credential tied to the authorizing FID.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	SignerUUID  string `json:"signer_uuid"`
	PublicKey   string `json:"public_key"`
	FID         int64  `json:"fid"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Callback exchanges the authorization code for a signer and persists it.
func (s *Service) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}
	if sc, err := r.Cookie(stateCookie); err != nil || sc.Value == "" || sc.Value != r.URL.Query().Get("state") {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	vc, err := r.Cookie(verifierCookie)
	if err != nil || vc.Value == "" {
		http.Error(w, "missing verifier, restart authorization", http.StatusBadRequest)
		return
	}

	tok, err := s.exchange(r.Context(), code, vc.Value)
	if err != nil {
		logging.Error("siwn exchange failed", map[string]any{"error": err.Error()})
		http.Error(w, "authorization failed, please reconnect", http.StatusUnauthorized)
		return
	}

	signer := model.Signer{
		FID:        tok.FID,
		SignerUUID: tok.SignerUUID,
		PublicKey:  tok.PublicKey,
		Status:     model.SignerActive,
	}
	if tok.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
		signer.ExpiresAt = &t
	}
	if err := s.store.UpsertSigner(r.Context(), signer); err != nil {
		logging.Error("signer persist failed", map[string]any{"fid": tok.FID, "error": err.Error()})
		http.Error(w, "failed to store signer", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: connectedCookie, Value: "1",
		SameSite: http.SameSiteLaxMode, Secure: true,
		Path: "/", MaxAge: 30 * 24 * 60 * 60,
	})
	http.SetCookie(w, &http.Cookie{Name: verifierCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, s.appURL+"/swipe?siwn=1", http.StatusFound)
}

func (s *Service) exchange(ctx context.Context, code, verifier string) (tokenResponse, error) {
	var tok tokenResponse
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.cfg.RedirectURI)
	form.Set("client_id", s.cfg.ClientID)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tok, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tok, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return tok, fmt.Errorf("%w: status %d", ErrExchangeFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tok, err
	}
	if tok.SignerUUID == "" || tok.FID <= 0 {
		return tok, fmt.Errorf("%w: incomplete token payload", ErrExchangeFailed)
	}
	return tok, nil
}
