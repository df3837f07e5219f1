// Package twitter implements the OAuth-credentialed microblogging
// channel. Credential resolution is a fixed ladder: the full OAuth1
// read/write set first (required for media), then a previously-obtained
// OAuth2 access token, then a bearer-only token. The manager never
// silently downgrades when a higher-privilege set is configured.
package twitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

const requestTimeout = 30 * time.Second

// authMode identifies which rung of the credential ladder is active.
type authMode int

const (
	authNone authMode = iota
	authOAuth1
	authOAuth2
	authBearer
)

func (a authMode) String() string {
	switch a {
	case authOAuth1:
		return "oauth1"
	case authOAuth2:
		return "oauth2"
	case authBearer:
		return "bearer"
	default:
		return "none"
	}
}

// CredentialStore is the settings-store subset the manager uses.
type CredentialStore interface {
	GetCredential(ctx context.Context, tenantID string, channel models.Channel) (*models.ChannelCredential, error)
	UpsertCredential(ctx context.Context, cred *models.ChannelCredential) error
}

// credParams is the shape of the credential params blob for this channel.
type credParams struct {
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	AccessSecret   string `json:"access_secret,omitempty"`

	OAuth2AccessToken  string `json:"oauth2_access_token,omitempty"`
	OAuth2RefreshToken string `json:"oauth2_refresh_token,omitempty"`
	OAuth2ClientID     string `json:"oauth2_client_id,omitempty"`
	OAuth2ClientSecret string `json:"oauth2_client_secret,omitempty"`

	BearerToken string `json:"bearer_token,omitempty"`
}

// Manager owns one tenant's credential ladder and outbound posts.
type Manager struct {
	tenantID string
	cfg      config.TwitterConfig
	store    CredentialStore
	logger   logger.Logger

	mu      sync.Mutex
	params  credParams
	mode    authMode
	expired bool

	// oauth1Client signs requests with the full read/write set.
	oauth1Client *http.Client
	plainClient  *http.Client
}

// NewManager creates a manager for one tenant.
func NewManager(tenantID string, cfg config.TwitterConfig, store CredentialStore, log logger.Logger) *Manager {
	return &Manager{
		tenantID:    tenantID,
		cfg:         cfg,
		store:       store,
		logger:      log.With(logger.String("channel", "twitter"), logger.String("tenant_id", tenantID)),
		plainClient: &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the channel identity.
func (m *Manager) Name() models.Channel { return models.ChannelTwitter }

// Initialize loads stored credentials and resolves the ladder rung.
// Missing credentials are quiescent.
func (m *Manager) Initialize(ctx context.Context) error {
	cred, err := m.store.GetCredential(ctx, m.tenantID, models.ChannelTwitter)
	if errors.Is(err, models.ErrNotFound) {
		m.logger.Info("no credentials stored, channel idle")
		return nil
	}
	if err != nil {
		return err
	}

	var params credParams
	if err := json.Unmarshal(cred.Params, &params); err != nil {
		return err
	}

	m.mu.Lock()
	m.params = params
	m.expired = cred.TokenStatus == models.TokenStatusExpired
	m.mode = resolveMode(&params)
	if m.mode == authOAuth1 {
		oauthCfg := oauth1.NewConfig(params.ConsumerKey, params.ConsumerSecret)
		token := oauth1.NewToken(params.AccessToken, params.AccessSecret)
		m.oauth1Client = oauthCfg.Client(context.Background(), token)
		m.oauth1Client.Timeout = requestTimeout
	} else {
		m.oauth1Client = nil
	}
	m.mu.Unlock()

	m.logger.Info("credentials loaded", logger.String("auth_mode", m.mode.String()))
	return nil
}

// resolveMode applies the fixed resolution order. The order must not
// vary by request.
func resolveMode(p *credParams) authMode {
	switch {
	case p.ConsumerKey != "" && p.ConsumerSecret != "" && p.AccessToken != "" && p.AccessSecret != "":
		return authOAuth1
	case p.OAuth2AccessToken != "":
		return authOAuth2
	case p.BearerToken != "":
		return authBearer
	default:
		return authNone
	}
}

// ReloadCredentials re-reads stored credentials.
func (m *Manager) ReloadCredentials(ctx context.Context) error {
	return m.Initialize(ctx)
}

// IsReady reports whether some usable credential rung is configured.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode != authNone && !m.expired
}

// SendOffer posts the body, attaching the offer image when the OAuth1
// rung is active. An image upload failure degrades to a text-only post
// carrying the image URL inline rather than abandoning the post.
func (m *Manager) SendOffer(ctx context.Context, offer *models.Offer, body string) (string, error) {
	m.mu.Lock()
	mode := m.mode
	expired := m.expired
	m.mu.Unlock()

	if mode == authNone {
		return "", models.ErrNotConfigured
	}
	if expired {
		return "", models.ErrCredentialExpired
	}

	var mediaID string
	if offer.ImageURL != "" && mode == authOAuth1 {
		id, err := m.uploadMedia(ctx, offer.ImageURL)
		if err != nil {
			m.logger.Warn("media upload failed, degrading to text-only post",
				logger.String("offer_id", offer.ID),
				logger.Error(err),
			)
			if !strings.Contains(body, offer.ImageURL) {
				body = body + "\n" + offer.ImageURL
			}
		} else {
			mediaID = id
		}
	}

	tweetID, err := m.postTweet(ctx, body, mediaID)
	if err != nil {
		if errors.Is(err, models.ErrQuotaExhausted) {
			// External quota exhaustion, not a code defect. Surfaced
			// distinctly for operator diagnostics.
			m.logger.Warn("platform rate limit hit (429)",
				logger.String("offer_id", offer.ID))
		}
		return "", err
	}

	m.logger.Info("offer posted",
		logger.String("offer_id", offer.ID),
		logger.String("tweet_id", tweetID),
		logger.String("auth_mode", mode.String()),
	)
	return tweetID, nil
}

// postTweet creates the post through the v2 endpoint with whichever
// client the ladder resolved.
func (m *Manager) postTweet(ctx context.Context, text, mediaID string) (string, error) {
	payload := map[string]any{"text": text}
	if mediaID != "" {
		payload["media"] = map[string]any{"media_ids": []string{mediaID}}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL+"/2/tweets", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", models.ErrQuotaExhausted
	}
	if resp.StatusCode >= http.StatusBadRequest {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tweet create failed: status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// uploadMedia downloads the image and uploads it through the v1.1 media
// endpoint, which requires the OAuth1 credential set.
func (m *Manager) uploadMedia(ctx context.Context, imageURL string) (string, error) {
	m.mu.Lock()
	client := m.oauth1Client
	m.mu.Unlock()
	if client == nil {
		return "", errors.New("media upload requires the full oauth1 credential set")
	}

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return "", err
	}
	imgResp, err := m.plainClient.Do(imgReq)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer imgResp.Body.Close()
	if imgResp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch image: status %d", imgResp.StatusCode)
	}

	const maxImageBytes = 5 << 20
	data, err := io.ReadAll(io.LimitReader(imgResp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("media_data", base64.StdEncoding.EncodeToString(data)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.UploadURL+"/1.1/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", models.ErrQuotaExhausted
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("media upload failed: status %d", resp.StatusCode)
	}

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", errors.New("no media id in upload response")
	}
	return out.MediaIDString, nil
}

// do dispatches with the active ladder rung's authentication.
func (m *Manager) do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	mode := m.mode
	oauth1Client := m.oauth1Client
	params := m.params
	m.mu.Unlock()

	switch mode {
	case authOAuth1:
		return oauth1Client.Do(req)
	case authOAuth2:
		req.Header.Set("Authorization", "Bearer "+params.OAuth2AccessToken)
		return m.plainClient.Do(req)
	case authBearer:
		// Bearer-only tokens are read-leaning and may lack posting
		// rights; the attempt is still made and the platform decides.
		req.Header.Set("Authorization", "Bearer "+params.BearerToken)
		return m.plainClient.Do(req)
	default:
		return nil, models.ErrNotConfigured
	}
}

// RefreshToken exchanges the stored OAuth2 refresh token for fresh
// tokens and persists them. Called by the token lifecycle sweep.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	params := m.params
	m.mu.Unlock()

	if params.OAuth2RefreshToken == "" {
		return errors.New("no refresh token stored")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {params.OAuth2RefreshToken},
		"client_id":     {params.OAuth2ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if params.OAuth2ClientSecret != "" {
		req.SetBasicAuth(params.OAuth2ClientID, params.OAuth2ClientSecret)
	}

	resp, err := m.plainClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return errors.New("no access token in refresh response")
	}

	m.mu.Lock()
	m.params.OAuth2AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		m.params.OAuth2RefreshToken = out.RefreshToken
	}
	m.expired = false
	m.mode = resolveMode(&m.params)
	params = m.params
	m.mu.Unlock()

	blob, err := json.Marshal(params)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	cred := &models.ChannelCredential{
		TenantID:    m.tenantID,
		Channel:     models.ChannelTwitter,
		Params:      blob,
		TokenStatus: models.TokenStatusActive,
		ExpiresAt:   &expiresAt,
	}
	if err := m.store.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("persist refreshed credential: %w", err)
	}

	m.logger.Info("oauth2 token refreshed",
		logger.Time("expires_at", expiresAt))
	return nil
}

// Status reports the best-effort current state for the dashboard.
func (m *Manager) Status() channels.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	detail := "auth mode: " + m.mode.String()
	if m.expired {
		detail = "token expired, re-authorization required"
	}
	return channels.Status{
		Channel:    models.ChannelTwitter,
		Configured: m.mode != authNone,
		Ready:      m.mode != authNone && !m.expired,
		Detail:     detail,
	}
}
