// Package instagram implements the OAuth-token business-messaging
// channel: media publishing through the platform graph API and a
// webhook-driven conversation funnel for inbound direct messages.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

const (
	requestTimeout = 30 * time.Second

	// longLivedTokenTTL is the platform's long-lived token lifetime.
	longLivedTokenTTL = 60 * 24 * time.Hour
)

// ErrImageRequired is returned when an offer has no image; the platform
// only publishes media posts.
var ErrImageRequired = errors.New("offer has no image url")

// ErrHourlyCapReached is returned by the soft client-side guard.
var ErrHourlyCapReached = errors.New("client-side hourly cap reached")

// CredentialStore is the settings-store subset the manager uses.
type CredentialStore interface {
	GetCredential(ctx context.Context, tenantID string, channel models.Channel) (*models.ChannelCredential, error)
	UpsertCredential(ctx context.Context, cred *models.ChannelCredential) error
}

// credParams is the shape of the credential params blob for this channel.
type credParams struct {
	AccessToken string `json:"access_token"` // long-lived user token
	PageToken   string `json:"page_token"`   // derived page identity token for sends
	AccountID   string `json:"account_id"`   // platform business account id
}

// Manager owns one tenant's token state and outbound graph calls.
type Manager struct {
	tenantID string
	cfg      config.InstagramConfig
	store    CredentialStore
	funnel   *Funnel
	client   *http.Client
	logger   logger.Logger

	mu          sync.Mutex
	accessToken string
	pageToken   string
	accountID   string
	expired     bool
	lastOffer   *models.Offer

	// Soft sliding-hour guard. The ledger-backed limiter remains the
	// authoritative rate control; this only protects against bursts
	// between ledger checks.
	hourlyCount int
	hourStart   time.Time
}

// NewManager creates a manager for one tenant.
func NewManager(tenantID string, cfg config.InstagramConfig, store CredentialStore, conversions ConversionStore, log logger.Logger) *Manager {
	m := &Manager{
		tenantID: tenantID,
		cfg:      cfg,
		store:    store,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   log.With(logger.String("channel", "instagram"), logger.String("tenant_id", tenantID)),
	}
	m.funnel = NewFunnel(m, conversions, m.logger)
	return m
}

// Name returns the channel identity.
func (m *Manager) Name() models.Channel { return models.ChannelInstagram }

// Funnel returns the conversation funnel fed by webhook events.
func (m *Manager) Funnel() *Funnel { return m.funnel }

// Initialize loads stored tokens. Missing credentials are quiescent.
func (m *Manager) Initialize(ctx context.Context) error {
	cred, err := m.store.GetCredential(ctx, m.tenantID, models.ChannelInstagram)
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
	m.accessToken = params.AccessToken
	m.pageToken = params.PageToken
	m.accountID = params.AccountID
	m.expired = cred.TokenStatus == models.TokenStatusExpired
	m.mu.Unlock()
	return nil
}

// ReloadCredentials re-reads stored tokens, picking up status flags set
// by the token lifecycle sweep.
func (m *Manager) ReloadCredentials(ctx context.Context) error {
	return m.Initialize(ctx)
}

// IsReady reports whether both tokens are present and not expired.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedLocked()
}

func (m *Manager) authenticatedLocked() bool {
	return m.accessToken != "" && m.pageToken != "" && !m.expired
}

// AuthorizationURL builds the platform OAuth dialog URL with the given
// CSRF state embedded.
func (m *Manager) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", m.cfg.AppID)
	q.Set("redirect_uri", m.cfg.RedirectURL)
	q.Set("state", state)
	q.Set("response_type", "code")
	q.Set("scope", "instagram_basic,instagram_content_publish,instagram_manage_messages,pages_show_list")
	return "https://www.facebook.com/v19.0/dialog/oauth?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens: short-lived user
// token, upgraded to long-lived, then the page identity token and the
// business account id. The result is persisted with its expiry.
func (m *Manager) ExchangeCode(ctx context.Context, code string) error {
	shortToken, err := m.fetchToken(ctx, url.Values{
		"client_id":     {m.cfg.AppID},
		"client_secret": {m.cfg.AppSecret},
		"redirect_uri":  {m.cfg.RedirectURL},
		"code":          {code},
	})
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	longToken, err := m.fetchToken(ctx, url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {m.cfg.AppID},
		"client_secret":     {m.cfg.AppSecret},
		"fb_exchange_token": {shortToken},
	})
	if err != nil {
		return fmt.Errorf("upgrade to long-lived token: %w", err)
	}

	pageToken, accountID, err := m.resolveBusinessIdentity(ctx, longToken)
	if err != nil {
		return fmt.Errorf("resolve business identity: %w", err)
	}

	m.mu.Lock()
	m.accessToken = longToken
	m.pageToken = pageToken
	m.accountID = accountID
	m.expired = false
	m.mu.Unlock()

	blob, err := json.Marshal(credParams{AccessToken: longToken, PageToken: pageToken, AccountID: accountID})
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(longLivedTokenTTL)
	cred := &models.ChannelCredential{
		TenantID:    m.tenantID,
		Channel:     models.ChannelInstagram,
		Params:      blob,
		TokenStatus: models.TokenStatusActive,
		ExpiresAt:   &expiresAt,
	}
	if err := m.store.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	m.logger.Info("authorization complete", logger.String("account_id", accountID))
	return nil
}

func (m *Manager) fetchToken(ctx context.Context, q url.Values) (string, error) {
	endpoint := m.cfg.GraphURL + "/oauth/access_token?" + q.Encode()
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := m.getJSON(ctx, endpoint, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("no access token in response")
	}
	return out.AccessToken, nil
}

// resolveBusinessIdentity finds the page token and the linked business
// account id for the authorized user.
func (m *Manager) resolveBusinessIdentity(ctx context.Context, userToken string) (pageToken, accountID string, err error) {
	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	endpoint := m.cfg.GraphURL + "/me/accounts?access_token=" + url.QueryEscape(userToken)
	if err := m.getJSON(ctx, endpoint, &pages); err != nil {
		return "", "", err
	}
	if len(pages.Data) == 0 {
		return "", "", errors.New("no pages linked to the authorized user")
	}

	page := pages.Data[0]
	var detail struct {
		InstagramBusinessAccount struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	endpoint = fmt.Sprintf("%s/%s?fields=instagram_business_account&access_token=%s",
		m.cfg.GraphURL, page.ID, url.QueryEscape(page.AccessToken))
	if err := m.getJSON(ctx, endpoint, &detail); err != nil {
		return "", "", err
	}
	if detail.InstagramBusinessAccount.ID == "" {
		return "", "", errors.New("page has no linked business account")
	}

	return page.AccessToken, detail.InstagramBusinessAccount.ID, nil
}

// SendOffer publishes the offer as a media post: create a media container
// with the image and caption, then publish it.
func (m *Manager) SendOffer(ctx context.Context, offer *models.Offer, body string) (string, error) {
	m.mu.Lock()
	if m.accessToken == "" || m.pageToken == "" {
		m.mu.Unlock()
		return "", models.ErrNotConfigured
	}
	if m.expired {
		m.mu.Unlock()
		return "", models.ErrCredentialExpired
	}
	if !m.admitHourlyLocked() {
		m.mu.Unlock()
		return "", ErrHourlyCapReached
	}
	accountID := m.accountID
	token := m.pageToken
	m.mu.Unlock()

	if offer.ImageURL == "" {
		return "", ErrImageRequired
	}

	containerID, err := m.createContainer(ctx, accountID, token, offer.ImageURL, body)
	if err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}

	mediaID, err := m.publishContainer(ctx, accountID, token, containerID)
	if err != nil {
		return "", fmt.Errorf("publish media: %w", err)
	}

	m.mu.Lock()
	m.hourlyCount++
	m.lastOffer = offer
	m.mu.Unlock()

	m.logger.Info("offer published",
		logger.String("offer_id", offer.ID),
		logger.String("media_id", mediaID),
	)
	return mediaID, nil
}

// admitHourlyLocked applies the in-memory sliding-hour guard. The counter
// resets once an hour has elapsed since the last reset. Caller holds mu.
func (m *Manager) admitHourlyLocked() bool {
	now := time.Now()
	if m.hourStart.IsZero() || now.Sub(m.hourStart) >= time.Hour {
		m.hourStart = now
		m.hourlyCount = 0
	}
	return m.cfg.HourlyCap <= 0 || m.hourlyCount < m.cfg.HourlyCap
}

func (m *Manager) createContainer(ctx context.Context, accountID, token, imageURL, caption string) (string, error) {
	form := url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := m.postForm(ctx, m.cfg.GraphURL+"/"+accountID+"/media", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("no container id in response")
	}
	return out.ID, nil
}

func (m *Manager) publishContainer(ctx context.Context, accountID, token, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := m.postForm(ctx, m.cfg.GraphURL+"/"+accountID+"/media_publish", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// sendMessage delivers a direct message reply through the page identity.
func (m *Manager) sendMessage(ctx context.Context, recipientID, text string) error {
	m.mu.Lock()
	token := m.pageToken
	expired := m.expired
	m.mu.Unlock()

	if token == "" {
		return models.ErrNotConfigured
	}
	if expired {
		return models.ErrCredentialExpired
	}

	payload := map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := m.cfg.GraphURL + "/me/messages?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("message send failed: status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("graph api error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.ErrQuotaExhausted
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("graph api error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// currentOffer returns the most recently published offer, which the
// funnel promotes in replies.
func (m *Manager) currentOffer() *models.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOffer
}

// Status reports the best-effort current state for the dashboard.
func (m *Manager) Status() channels.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	detail := ""
	if m.expired {
		detail = "token expired, re-authorization required"
	}
	return channels.Status{
		Channel:    models.ChannelInstagram,
		Configured: m.accessToken != "",
		Ready:      m.authenticatedLocked(),
		AccountID:  m.accountID,
		Detail:     detail,
	}
}
