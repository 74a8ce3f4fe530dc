package fetchimages

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/models"
)

// Keywords used when the Director left one empty.
const (
	DefaultBgKeyword     = "interior"
	DefaultDetailKeyword = "product"
	DefaultSocialKeyword = "success"
)

// nonWord matches anything that is not a letter, digit, underscore or space in any script.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}]`)

// niches maps ICP substrings to a query prefix. Order matters: the first hit wins.
var niches = []struct {
	needles []string
	bias    string
}{
	{[]string{"bakery", "bread"}, "bakery food"},
	{[]string{"trading", "stock"}, "finance market"},
	{[]string{"yoga", "wellness"}, "yoga studio"},
	{[]string{"security", "cyber"}, "cyber security office"},
}

// NicheBias returns the industry keyword prepended to every image query for icp.
func NicheBias(icp string) string {
	low := strings.ToLower(icp)
	for _, n := range niches {
		for _, needle := range n.needles {
			if strings.Contains(low, needle) {
				return n.bias
			}
		}
	}
	return "modern"
}

// BuildQuery joins the niche bias with the keyword stripped of punctuation.
func BuildQuery(keyword, icp string) string {
	clean := strings.Join(strings.Fields(nonWord.ReplaceAllString(keyword, "")), " ")
	if clean == "" {
		return NicheBias(icp)
	}
	return NicheBias(icp) + " " + clean
}

type searchResponse struct {
	Photos []struct {
		Src struct {
			Large2x string `json:"large2x"`
		} `json:"src"`
	} `json:"photos"`
}

// Searcher looks up one stock photo per query. It never fails: every problem resolves to
// the fallback URL.
type Searcher struct {
	config *Config
	client *http.Client
	logger Logger

	mu   sync.Mutex
	rand *rand.Rand
}

func NewSearcher(config *Config, client *http.Client, log Logger, seed int64) *Searcher {
	return &Searcher{
		config: config,
		client: client,
		logger: log,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

func (s *Searcher) fallback() string {
	if s.config.FallbackURL != "" {
		return s.config.FallbackURL
	}
	return models.FallbackImageURL
}

func (s *Searcher) page() int {
	maxPage := s.config.MaxPage
	if maxPage < 1 {
		maxPage = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(maxPage) + 1
}

// Image returns one image URL for keyword, biased toward the industry in icp.
func (s *Searcher) Image(ctx context.Context, keyword, icp string) string {
	query := BuildQuery(keyword, icp)

	if s.config.SearchAPIKey == "" {
		metrics.ImageFallbacks.WithLabelValues("no_api_key").Inc()
		return s.fallback()
	}

	imageURL, reason, err := s.search(ctx, query)
	if err != nil || imageURL == "" {
		fields := map[string]interface{}{"query": query, "reason": reason}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn("image search fell back", fields)
		metrics.ImageFallbacks.WithLabelValues(reason).Inc()
		return s.fallback()
	}
	return imageURL
}

func (s *Searcher) search(ctx context.Context, query string) (string, string, error) {
	searchURL, err := url.Parse(strings.TrimRight(s.config.SearchAPIBaseURL, "/") + "/search")
	if err != nil {
		return "", "bad_url", err
	}
	params := url.Values{}
	params.Add("query", query)
	params.Add("per_page", "1")
	params.Add("page", fmt.Sprintf("%d", s.page()))
	searchURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return "", "bad_url", err
	}
	req.Header.Set("Authorization", s.config.SearchAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "request_error", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "status", fmt.Errorf("search API returned %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "decode", err
	}
	if len(body.Photos) == 0 || body.Photos[0].Src.Large2x == "" {
		return "", "empty", nil
	}
	return body.Photos[0].Src.Large2x, "", nil
}

// Fetch looks up the background, detail and social images concurrently.
func (s *Searcher) Fetch(ctx context.Context, input *Input) models.Images {
	var images models.Images
	g, gctx := errgroup.WithContext(ctx)

	lookups := []struct {
		dst     *string
		keyword string
	}{
		{&images.Background, orDefault(input.BgKeyword, DefaultBgKeyword)},
		{&images.Detail, orDefault(input.ImageKeyword, DefaultDetailKeyword)},
		{&images.Social, orDefault(input.LiImageKeyword, DefaultSocialKeyword)},
	}
	for _, l := range lookups {
		l := l
		g.Go(func() error {
			*l.dst = s.Image(gctx, l.keyword, input.ICP)
			return nil
		})
	}
	_ = g.Wait()

	return images
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
