package fetchimages

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genieops-engine/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t *testing.T
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, fields)
}

// ==========================
// Fake search API
// ==========================

type searchAPI struct {
	mu      sync.Mutex
	queries []string
	pages   []int
	auth    []string
}

func (a *searchAPI) handler(body string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		a.mu.Lock()
		a.queries = append(a.queries, r.URL.Query().Get("query"))
		a.pages = append(a.pages, page)
		a.auth = append(a.auth, r.Header.Get("Authorization"))
		a.mu.Unlock()

		if r.URL.Path != "/v1/search" || r.URL.Query().Get("per_page") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestSearcher(t *testing.T, baseURL, key string) *Searcher {
	cfg := &Config{
		SearchAPIBaseURL: baseURL,
		SearchAPIKey:     key,
		Timeout:          2 * time.Second,
		MaxPage:          20,
	}
	return NewSearcher(cfg, &http.Client{Timeout: cfg.Timeout}, NewTestLogger(t), 1)
}

const onePhoto = `{"photos":[{"src":{"large2x":"https://images.example/bread.jpg"}}]}`

func TestNicheBias(t *testing.T) {
	tests := []struct {
		icp  string
		want string
	}{
		{"Owner of a 5-person Bakery struggling with online orders", "bakery food"},
		{"artisan bread makers", "bakery food"},
		{"day trading coaches", "finance market"},
		{"Stock photographers", "finance market"},
		{"yoga teachers", "yoga studio"},
		{"corporate wellness leads", "yoga studio"},
		{"Cyber insurance brokers", "cyber security office"},
		{"SaaS founders", "modern"},
		{"Owners of small bakeries", "modern"},
		{"", "modern"},
	}

	for _, tt := range tests {
		t.Run(tt.icp, func(t *testing.T) {
			assert.Equal(t, tt.want, NicheBias(tt.icp))
		})
	}
}

func TestBuildQuery_StripsPunctuation(t *testing.T) {
	assert.Equal(t, "bakery food fresh loaves", BuildQuery(`"fresh, loaves!"`, "bakery owners"))
	assert.Equal(t, "modern", BuildQuery("!!!", "founders"))
	assert.Equal(t, "bakery food café crème brûlée", BuildQuery("café, crème brûlée!", "bakery owners"))
	assert.Equal(t, "modern 東京 2024", BuildQuery("東京 (2024)", "founders"))
}

func TestSearcher_Image(t *testing.T) {
	api := &searchAPI{}
	server := httptest.NewServer(api.handler(onePhoto, http.StatusOK))
	defer server.Close()

	s := newTestSearcher(t, server.URL+"/v1", "pexels-key")

	got := s.Image(context.Background(), "oven", "Owner of a bakery")
	assert.Equal(t, "https://images.example/bread.jpg", got)

	require.Len(t, api.queries, 1)
	assert.Equal(t, "bakery food oven", api.queries[0])
	assert.Equal(t, "pexels-key", api.auth[0])
	assert.GreaterOrEqual(t, api.pages[0], 1)
	assert.LessOrEqual(t, api.pages[0], 20)
}

func TestSearcher_ImageFallback(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		key    string
	}{
		{"empty results", `{"photos":[]}`, http.StatusOK, "k"},
		{"server error", `{}`, http.StatusInternalServerError, "k"},
		{"malformed body", `{"photos":`, http.StatusOK, "k"},
		{"missing key", onePhoto, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &searchAPI{}
			server := httptest.NewServer(api.handler(tt.body, tt.status))
			defer server.Close()

			s := newTestSearcher(t, server.URL+"/v1", tt.key)
			assert.Equal(t, models.FallbackImageURL, s.Image(context.Background(), "oven", "bakers"))
		})
	}
}

func TestSearcher_ImageFallback_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s := newTestSearcher(t, url, "k")
	s.config.FallbackURL = "https://cdn.example/fallback.jpg"
	assert.Equal(t, "https://cdn.example/fallback.jpg", s.Image(context.Background(), "oven", "bakers"))
}

func TestHandler_Execute_FetchesThreeImages(t *testing.T) {
	api := &searchAPI{}
	server := httptest.NewServer(api.handler(onePhoto, http.StatusOK))
	defer server.Close()

	s := newTestSearcher(t, server.URL+"/v1", "k")
	h := NewHandler(s.config, s, NewTestLogger(t))

	out := h.Execute(context.Background(), &Input{
		ICP:          "I run a 5-person bakery",
		ImageKeyword: "croissant",
	})

	assert.Equal(t, "https://images.example/bread.jpg", out.Images.Background)
	assert.Equal(t, "https://images.example/bread.jpg", out.Images.Detail)
	assert.Equal(t, "https://images.example/bread.jpg", out.Images.Social)

	require.Len(t, api.queries, 3)
	assert.ElementsMatch(t, []string{
		"bakery food " + DefaultBgKeyword,
		"bakery food croissant",
		"bakery food " + DefaultSocialKeyword,
	}, api.queries)
	for _, q := range api.queries {
		assert.True(t, strings.HasPrefix(q, "bakery food"))
	}
}
