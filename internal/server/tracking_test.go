package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTrackClickRedirectsAndSetsCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tracking.On("RecordClick", mock.Anything, mock.MatchedBy(func(req trackingdomain.ClickRequest) bool {
		return req.AffiliateSlug == "alice" && req.LandingPage == "/pricing"
	})).Return(trackingdomain.ClickResult{Recorded: true, Slug: "alice"}, nil)

	target := "/track/click?am_id=alice&page=/pricing&redirect=" + url.QueryEscape("https://shop.example.com/pricing?plan=pro")
	rec := ts.do(httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", location.Host)
	assert.Equal(t, "alice", location.Query().Get("am_id"))
	assert.Equal(t, "pro", location.Query().Get("plan"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, affiliateCookieName, cookies[0].Name)
	assert.Equal(t, "alice", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 90*24*60*60, cookies[0].MaxAge)
}

func TestTrackClickServesPixelForUnknownSlug(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tracking.On("RecordClick", mock.Anything, mock.Anything).
		Return(trackingdomain.ClickResult{Recorded: false}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/track/click?am_id=ghost&redirect=none", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, transparentGIF, rec.Body.Bytes())
	assert.Empty(t, rec.Result().Cookies())
}

func TestTrackClickCampaignCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tracking.On("RecordClick", mock.Anything, mock.Anything).
		Return(trackingdomain.ClickResult{Recorded: true, Campaign: true, Slug: "spring"}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/track/click?am_id=spring", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, campaignCookieName, cookies[0].Name)
}

func TestRedirectTargetRejectsNonHTTP(t *testing.T) {
	_, ok := redirectTarget("javascript:alert(1)", "alice")
	assert.False(t, ok)
	_, ok = redirectTarget("/relative/path", "alice")
	assert.False(t, ok)

	target, ok := redirectTarget("https://example.com/?am_id=bob", "alice")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/?am_id=bob", target)
}

func TestTrackLeadUsesCookieAttribution(t *testing.T) {
	ts := newTestServer(t, nil)
	leadID := snowflake.ID(42)
	ts.tracking.On("RecordLead", mock.Anything, mock.MatchedBy(func(req trackingdomain.LeadRequest) bool {
		return req.CookieSlug == "alice" && req.Email == "buyer@example.com"
	})).Return(trackingdomain.LeadResult{LeadID: &leadID}, nil)

	req := jsonRequest(t, http.MethodPost, "/track/lead", map[string]string{"email": "buyer@example.com"})
	req.AddCookie(&http.Cookie{Name: affiliateCookieName, Value: "alice"})
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"lead_id":"42","existing":false}}`, rec.Body.String())
}

func TestTrackLeadErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing attribution", trackingdomain.ErrMissingAttribution, http.StatusBadRequest},
		{"unknown affiliate", trackingdomain.ErrAffiliateNotFound, http.StatusNotFound},
		{"invalid email", trackingdomain.ErrInvalidEmail, http.StatusBadRequest},
		{"storage failure degrades", errors.New("db down"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.tracking.On("RecordLead", mock.Anything, mock.Anything).
				Return(trackingdomain.LeadResult{}, tc.err)

			rec := ts.do(jsonRequest(t, http.MethodPost, "/track/lead", map[string]string{"email": "x@example.com"}))
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"data":{"lead_id":null,"existing":false}}`, rec.Body.String())
			}
		})
	}
}

func TestTrackRateLimitDenies(t *testing.T) {
	ts := newTestServer(t, stubLimiter{decision: ratelimit.Decision{Allowed: false, Limit: 60}})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/track/click?am_id=alice", nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	ts.tracking.AssertNotCalled(t, "RecordClick", mock.Anything, mock.Anything)
}

func TestTrackRateLimitFailsOpen(t *testing.T) {
	ts := newTestServer(t, stubLimiter{err: errors.New("redis down")})
	ts.tracking.On("RecordClick", mock.Anything, mock.Anything).
		Return(trackingdomain.ClickResult{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/track/click?am_id=alice", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
