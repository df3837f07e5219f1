package twitter_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/channels/twitter"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	cred *models.ChannelCredential
}

func (s *fakeStore) GetCredential(_ context.Context, _ string, _ models.Channel) (*models.ChannelCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, models.ErrNotFound
	}
	return s.cred, nil
}

func (s *fakeStore) UpsertCredential(_ context.Context, cred *models.ChannelCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

func credWith(t *testing.T, params map[string]string) *models.ChannelCredential {
	t.Helper()
	blob, err := json.Marshal(params)
	require.NoError(t, err)
	return &models.ChannelCredential{
		TenantID:    "t1",
		Channel:     models.ChannelTwitter,
		Params:      blob,
		TokenStatus: models.TokenStatusActive,
	}
}

func oauth1Params() map[string]string {
	return map[string]string{
		"consumer_key":    "ck",
		"consumer_secret": "cs",
		"access_token":    "at",
		"access_secret":   "as",
	}
}

func newManager(t *testing.T, cfg config.TwitterConfig, store *fakeStore) *twitter.Manager {
	t.Helper()
	m := twitter.NewManager("t1", cfg, store, logger.NewNopLogger())
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestCredentialLadderResolution(t *testing.T) {
	cases := []struct {
		name       string
		params     map[string]string
		wantDetail string
		wantReady  bool
	}{
		{
			name: "full oauth1 set wins over everything",
			params: map[string]string{
				"consumer_key": "ck", "consumer_secret": "cs",
				"access_token": "at", "access_secret": "as",
				"oauth2_access_token": "o2", "bearer_token": "b",
			},
			wantDetail: "auth mode: oauth1",
			wantReady:  true,
		},
		{
			name: "incomplete oauth1 set falls to oauth2",
			params: map[string]string{
				"consumer_key":        "ck",
				"oauth2_access_token": "o2",
				"bearer_token":        "b",
			},
			wantDetail: "auth mode: oauth2",
			wantReady:  true,
		},
		{
			name:       "bearer only",
			params:     map[string]string{"bearer_token": "b"},
			wantDetail: "auth mode: bearer",
			wantReady:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newManager(t, config.TwitterConfig{}, &fakeStore{cred: credWith(t, tc.params)})
			status := m.Status()
			assert.Equal(t, tc.wantDetail, status.Detail)
			assert.Equal(t, tc.wantReady, m.IsReady())
		})
	}
}

func TestSendOffer_NotConfigured(t *testing.T) {
	m := newManager(t, config.TwitterConfig{}, &fakeStore{})
	_, err := m.SendOffer(context.Background(), &models.Offer{ID: "o1"}, "body")
	assert.ErrorIs(t, err, models.ErrNotConfigured)
}

func TestSendOffer_ExpiredCredential(t *testing.T) {
	cred := credWith(t, map[string]string{"bearer_token": "b"})
	cred.TokenStatus = models.TokenStatusExpired
	m := newManager(t, config.TwitterConfig{}, &fakeStore{cred: cred})

	_, err := m.SendOffer(context.Background(), &models.Offer{ID: "o1"}, "body")
	assert.ErrorIs(t, err, models.ErrCredentialExpired)
	assert.False(t, m.IsReady())
}

func TestSendOffer_PostsWithOAuth2Token(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"1900"}}`))
	}))
	defer srv.Close()

	store := &fakeStore{cred: credWith(t, map[string]string{"oauth2_access_token": "tok-2"})}
	m := newManager(t, config.TwitterConfig{APIURL: srv.URL}, store)

	id, err := m.SendOffer(context.Background(), &models.Offer{ID: "o1"}, "the post body")
	require.NoError(t, err)
	assert.Equal(t, "1900", id)
	assert.Equal(t, "Bearer tok-2", gotAuth)
	assert.Equal(t, "the post body", gotBody["text"])
}

func TestSendOffer_RateLimitedByPlatform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := &fakeStore{cred: credWith(t, map[string]string{"bearer_token": "b"})}
	m := newManager(t, config.TwitterConfig{APIURL: srv.URL}, store)

	_, err := m.SendOffer(context.Background(), &models.Offer{ID: "o1"}, "body")
	assert.ErrorIs(t, err, models.ErrQuotaExhausted)
}

func TestSendOffer_MediaUploadedWithOAuth1(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fake-image-bytes"))
	}))
	defer img.Close()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/1.1/media/upload.json", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "OAuth",
			"media upload must be signed with the oauth1 set")
		_, _ = w.Write([]byte(`{"media_id_string":"m-777"}`))
	}))
	defer upload.Close()

	var gotBody map[string]any
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"id":"42"}}`))
	}))
	defer api.Close()

	store := &fakeStore{cred: credWith(t, oauth1Params())}
	m := newManager(t, config.TwitterConfig{APIURL: api.URL, UploadURL: upload.URL}, store)

	offer := &models.Offer{ID: "o1", ImageURL: img.URL + "/img.jpg"}
	id, err := m.SendOffer(context.Background(), offer, "with media")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	media, ok := gotBody["media"].(map[string]any)
	require.True(t, ok, "tweet payload must carry the media attachment")
	assert.Equal(t, []any{"m-777"}, media["media_ids"])
}

func TestSendOffer_UploadFailureDegradesToText(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fake-image-bytes"))
	}))
	defer img.Close()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upload.Close()

	var gotBody map[string]any
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = w.Write([]byte(`{"data":{"id":"43"}}`))
	}))
	defer api.Close()

	store := &fakeStore{cred: credWith(t, oauth1Params())}
	m := newManager(t, config.TwitterConfig{APIURL: api.URL, UploadURL: upload.URL}, store)

	imageURL := img.URL + "/img.jpg"
	offer := &models.Offer{ID: "o1", ImageURL: imageURL}
	id, err := m.SendOffer(context.Background(), offer, "deal text")
	require.NoError(t, err, "an upload failure must not abandon the post")
	assert.Equal(t, "43", id)

	text, _ := gotBody["text"].(string)
	assert.Contains(t, text, "deal text")
	assert.Contains(t, text, imageURL, "the image URL rides inline when upload fails")
	assert.Nil(t, gotBody["media"])
}

func TestRefreshToken_PersistsNewTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200}`))
	}))
	defer srv.Close()

	store := &fakeStore{cred: credWith(t, map[string]string{
		"oauth2_access_token":  "old-access",
		"oauth2_refresh_token": "old-refresh",
		"oauth2_client_id":     "client-1",
	})}
	m := newManager(t, config.TwitterConfig{APIURL: srv.URL}, store)

	require.NoError(t, m.RefreshToken(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotNil(t, store.cred)
	assert.Equal(t, models.TokenStatusActive, store.cred.TokenStatus)
	require.NotNil(t, store.cred.ExpiresAt)

	var params map[string]string
	require.NoError(t, json.Unmarshal(store.cred.Params, &params))
	assert.Equal(t, "new-access", params["oauth2_access_token"])
	assert.Equal(t, "new-refresh", params["oauth2_refresh_token"])
}

func TestRefreshToken_NoRefreshTokenStored(t *testing.T) {
	store := &fakeStore{cred: credWith(t, map[string]string{"bearer_token": "b"})}
	m := newManager(t, config.TwitterConfig{}, store)

	assert.Error(t, m.RefreshToken(context.Background()))
}
