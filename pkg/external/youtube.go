package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rehabflow-backend/internal/domain"
)

// YouTubeClient finds the best embeddable exercise video for a keyword set
// using the YouTube Data API. Candidates come from the Search API ordered
// by relevance; the final pick is a composite score that also weighs view
// count, like count and like-to-view ratio, so a highly-liked tutorial
// with millions of views beats a technically top-ranked video with poor
// engagement.
type YouTubeClient struct {
	baseURL        string
	apiKey         string
	candidateCount int
	httpClient     *http.Client
	rateLimit      *rate.Limiter
	log            *logrus.Logger
}

// Composite score weights.
const (
	weightRelevance = 0.30
	weightViews     = 0.35
	weightLikes     = 0.25
	weightRatio     = 0.10

	// A 20% like rate is essentially perfect; cap the ratio there.
	ratioCap = 0.20
)

// NewYouTubeClient creates a new YouTube Data API client
func NewYouTubeClient(config domain.YouTubeConfig, logger *logrus.Logger) *YouTubeClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rateLimit := config.RateLimit
	if rateLimit == 0 {
		rateLimit = 10
	}
	candidateCount := config.CandidateCount
	if candidateCount == 0 {
		candidateCount = 10
	}

	return &YouTubeClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         config.APIKey,
		candidateCount: candidateCount,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(rateLimit), 1),
		log:       logger,
	}
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type youtubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type videoStats struct {
	views int64
	likes int64
}

// FindBest returns the embed URL of the best matching video for the given
// keywords. ErrNoVideoFound means the search produced no playable result;
// ErrVideoSearchUnavailable means the API itself failed.
func (c *YouTubeClient) FindBest(ctx context.Context, keywords []string) (*domain.VideoMatch, error) {
	query := joinKeywords(keywords)
	if query == "" {
		return nil, fmt.Errorf("at least one non-empty keyword is required")
	}

	c.log.WithField("query", query).Info("YouTube search")

	videoIDs, err := c.searchCandidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return nil, fmt.Errorf("no results for query %q: %w", query, domain.ErrNoVideoFound)
	}

	stats, err := c.fetchStatistics(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	// The videos endpoint only returns IDs that are publicly accessible
	// (not deleted, private, or region-blocked). Drop any ID absent from
	// the stats response so we never return an unplayable embed URL.
	available := videoIDs[:0:0]
	for _, id := range videoIDs {
		if _, ok := stats[id]; ok {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no publicly accessible video for query %q: %w", query, domain.ErrNoVideoFound)
	}

	bestID, bestScore := scoreVideos(available, stats)

	c.log.WithFields(logrus.Fields{
		"video_id": bestID,
		"score":    fmt.Sprintf("%.3f", bestScore),
		"query":    query,
	}).Info("Best video selected")

	return &domain.VideoMatch{
		EmbedURL: "https://www.youtube.com/embed/" + bestID,
		Query:    query,
	}, nil
}

// searchCandidates returns video IDs ordered by YouTube's own relevance.
func (c *YouTubeClient) searchCandidates(ctx context.Context, query string) ([]string, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{
		"part":              {"snippet"},
		"q":                 {query + " -#shorts"},
		"type":              {"video"},
		"maxResults":        {strconv.Itoa(c.candidateCount)},
		"videoEmbeddable":   {"true"},
		"videoSyndicated":   {"true"},
		"videoDuration":     {"medium"},
		"relevanceLanguage": {"en"},
		"regionCode":        {"US"},
		"order":             {"relevance"},
		"key":               {c.apiKey},
	}

	var response youtubeSearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search", params, &response); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// fetchStatistics returns per-video view and like counts.
func (c *YouTubeClient) fetchStatistics(ctx context.Context, videoIDs []string) (map[string]videoStats, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{
		"part": {"statistics"},
		"id":   {strings.Join(videoIDs, ",")},
		"key":  {c.apiKey},
	}

	var response youtubeStatsResponse
	if err := c.getJSON(ctx, c.baseURL+"/videos", params, &response); err != nil {
		return nil, err
	}

	stats := make(map[string]videoStats, len(response.Items))
	for _, item := range response.Items {
		stats[item.ID] = videoStats{
			views: parseCount(item.Statistics.ViewCount),
			likes: parseCount(item.Statistics.LikeCount),
		}
	}
	return stats, nil
}

func (c *YouTubeClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating YouTube request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Error("YouTube API request failed")
		return fmt.Errorf("calling YouTube API: %w", domain.ErrVideoSearchUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading YouTube response: %w", domain.ErrVideoSearchUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(body), 500),
		}).Error("YouTube API returned non-200")
		return fmt.Errorf("YouTube API returned HTTP %d: %w", resp.StatusCode, domain.ErrVideoSearchUnavailable)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing YouTube response: %w", domain.ErrVideoSearchUnavailable)
	}
	return nil
}

// scoreVideos computes the composite score for each candidate and returns
// the winner. Rank position feeds the relevance term; views and likes are
// log-scaled then min-max normalised so a million-view video does not
// dwarf a hundred-thousand-view one.
func scoreVideos(videoIDs []string, stats map[string]videoStats) (string, float64) {
	n := len(videoIDs)

	logViews := make([]float64, n)
	logLikes := make([]float64, n)
	for i, id := range videoIDs {
		logViews[i] = math.Log1p(float64(stats[id].views))
		logLikes[i] = math.Log1p(float64(stats[id].likes))
	}

	maxViews := maxOf(logViews)
	if maxViews == 0 {
		maxViews = 1.0
	}
	maxLikes := maxOf(logLikes)
	if maxLikes == 0 {
		maxLikes = 1.0
	}

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, n)

	for rank, id := range videoIDs {
		relevanceScore := 1.0 - float64(rank)/float64(n)
		viewScore := logViews[rank] / maxViews
		likeScore := logLikes[rank] / maxLikes

		var ratioScore float64
		if stats[id].views > 0 {
			ratioScore = float64(stats[id].likes) / float64(stats[id].views)
		}
		ratioScore = math.Min(ratioScore, ratioCap) / ratioCap

		composite := weightRelevance*relevanceScore +
			weightViews*viewScore +
			weightLikes*likeScore +
			weightRatio*ratioScore

		results = append(results, scored{id: id, score: composite})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	return results[0].id, results[0].score
}

func joinKeywords(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func maxOf(values []float64) float64 {
	best := 0.0
	for _, v := range values {
		if v > best {
			best = v
		}
	}
	return best
}
