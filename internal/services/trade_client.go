package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	// TradeAPIBase is the base URL of the official PoE2 trade API
	TradeAPIBase = "https://www.pathofexile.com/api/trade2"

	tradeRealm          = "poe2"
	tradeFetchBatchSize = 10
	tradeUserAgent      = "poe2-price-checker/1.0"
	defaultTradeTimeout = 15 * time.Second

	DefaultSearchInterval = 2500 * time.Millisecond
	DefaultFetchInterval  = 1500 * time.Millisecond
)

// TradeAPIError is a non-2xx, non-429 answer from the trade API
type TradeAPIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *TradeAPIError) Error() string {
	return fmt.Sprintf("trade API %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// League is one trade league
type League struct {
	ID    string `json:"id"`
	Realm string `json:"realm"`
	Text  string `json:"text"`
}

// TradeClientOptions configures the trade API client
type TradeClientOptions struct {
	BaseURL        string
	League         string
	POESESSID      string
	OnlineOnly     bool
	Timeout        time.Duration
	SearchInterval time.Duration
	FetchInterval  time.Duration
	HTTPClient     *http.Client
}

// TradeClient talks to the PoE2 trade API. Search and fetch calls have their own
// adaptive limiters since the API enforces separate policies for them.
type TradeClient struct {
	httpClient    *http.Client
	baseURL       string
	onlineOnly    bool
	searchLimiter *AdaptiveLimiter
	fetchLimiter  *AdaptiveLimiter

	mu        sync.RWMutex
	league    string
	poesessid string
}

func NewTradeClient(opts TradeClientOptions) *TradeClient {
	if opts.BaseURL == "" {
		opts.BaseURL = TradeAPIBase
	}
	if opts.League == "" {
		opts.League = "Standard"
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTradeTimeout
	}
	if opts.SearchInterval == 0 {
		opts.SearchInterval = DefaultSearchInterval
	}
	if opts.FetchInterval == 0 {
		opts.FetchInterval = DefaultFetchInterval
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &TradeClient{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		onlineOnly:    opts.OnlineOnly,
		searchLimiter: NewAdaptiveLimiter("trade-search", opts.SearchInterval),
		fetchLimiter:  NewAdaptiveLimiter("trade-fetch", opts.FetchInterval),
		league:        opts.League,
		poesessid:     opts.POESESSID,
	}
}

// League returns the league searches run against
func (c *TradeClient) League() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.league
}

// SetLeague changes the league for subsequent searches
func (c *TradeClient) SetLeague(league string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.league = league
}

// SetPOESESSID sets the session cookie sent with every request. Never logged.
func (c *TradeClient) SetPOESESSID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poesessid = id
}

// Search runs one trade search and fetches up to query.Limit listings
func (c *TradeClient) Search(ctx context.Context, query models.TradeQuery) (*models.SearchResult, error) {
	body, err := json.Marshal(BuildTradeQueryBody(query, c.onlineOnly))
	if err != nil {
		return nil, fmt.Errorf("encode trade query: %w", err)
	}
	debugLog("Trade search body: %s", body)

	endpoint := fmt.Sprintf("%s/search/%s/%s", c.baseURL, tradeRealm, url.PathEscape(c.League()))
	data, err := c.doRequest(ctx, http.MethodPost, endpoint, body, c.searchLimiter, "search")
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     string   `json:"id"`
		Result []string `json:"result"`
		Total  int      `json:"total"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode trade search response: %w", err)
	}

	result := &models.SearchResult{Total: resp.Total, Listings: []models.Listing{}}
	if len(resp.Result) == 0 || query.Limit <= 0 {
		return result, nil
	}

	listings, icon, err := c.FetchListings(ctx, resp.ID, resp.Result, query.Limit)
	if err != nil {
		return nil, err
	}
	result.Listings = listings
	result.Icon = icon
	return result, nil
}

// FetchListings loads listing details in batches of ten.
// A rate limited batch is retried once after the advised wait.
func (c *TradeClient) FetchListings(ctx context.Context, queryID string, ids []string, limit int) ([]models.Listing, string, error) {
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	listings := make([]models.Listing, 0, len(ids))
	icon := ""

	for start := 0; start < len(ids); start += tradeFetchBatchSize {
		end := min(start+tradeFetchBatchSize, len(ids))
		endpoint := fmt.Sprintf("%s/fetch/%s?query=%s", c.baseURL, strings.Join(ids[start:end], ","), url.QueryEscape(queryID))

		data, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, c.fetchLimiter, "fetch")
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			if err := sleepContext(ctx, rateErr.RetryAfter); err != nil {
				return nil, "", err
			}
			data, err = c.doRequest(ctx, http.MethodGet, endpoint, nil, c.fetchLimiter, "fetch")
		}
		if err != nil {
			if len(listings) > 0 {
				log.Printf("Trade: fetch batch failed, keeping %d listings: %v", len(listings), err)
				break
			}
			return nil, "", err
		}

		batch, batchIcon, err := decodeFetchResponse(data)
		if err != nil {
			return nil, "", err
		}
		listings = append(listings, batch...)
		if icon == "" {
			icon = batchIcon
		}
	}

	return listings, icon, nil
}

type tradeFetchResponse struct {
	Result []*struct {
		ID      string `json:"id"`
		Listing struct {
			Indexed time.Time `json:"indexed"`
			Whisper string    `json:"whisper"`
			Account struct {
				Name              string `json:"name"`
				LastCharacterName string `json:"lastCharacterName"`
				Online            *struct {
					Status string `json:"status"`
				} `json:"online"`
			} `json:"account"`
			Price *struct {
				Type     string  `json:"type"`
				Amount   float64 `json:"amount"`
				Currency string  `json:"currency"`
			} `json:"price"`
		} `json:"listing"`
		Item struct {
			Icon     string `json:"icon"`
			Name     string `json:"name"`
			TypeLine string `json:"typeLine"`
		} `json:"item"`
	} `json:"result"`
}

func decodeFetchResponse(data []byte) ([]models.Listing, string, error) {
	var resp tradeFetchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, "", fmt.Errorf("decode trade fetch response: %w", err)
	}

	var listings []models.Listing
	icon := ""
	for _, entry := range resp.Result {
		if entry == nil {
			continue
		}
		if icon == "" {
			icon = entry.Item.Icon
		}
		if entry.Listing.Price == nil {
			continue
		}

		listing := models.Listing{
			Amount:    entry.Listing.Price.Amount,
			Currency:  entry.Listing.Price.Currency,
			Account:   entry.Listing.Account.Name,
			Character: entry.Listing.Account.LastCharacterName,
			Whisper:   entry.Listing.Whisper,
			Indexed:   entry.Listing.Indexed,
		}
		if listing.Account == "" {
			listing.Account = "Unknown"
		}
		if online := entry.Listing.Account.Online; online != nil {
			status := online.Status
			if status == "" {
				status = "online"
			}
			listing.Online = &status
		}
		listings = append(listings, listing)
	}
	return listings, icon, nil
}

// Stat groups are loaded in this order so explicit ids win over identical texts elsewhere
var statGroupOrder = map[string]int{
	"explicit":   0,
	"implicit":   1,
	"crafted":    2,
	"fractured":  3,
	"desecrated": 4,
	"rune":       5,
	"enchant":    6,
	"pseudo":     7,
}

// LoadStats downloads every trade stat definition
func (c *TradeClient) LoadStats(ctx context.Context) ([]StatDefinition, error) {
	data, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/data/stats", nil, c.fetchLimiter, "stats")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			ID      string           `json:"id"`
			Label   string           `json:"label"`
			Entries []StatDefinition `json:"entries"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode trade stats: %w", err)
	}

	groups := resp.Result
	sort.SliceStable(groups, func(i, j int) bool {
		return groupRank(groups[i].ID) < groupRank(groups[j].ID)
	})

	var defs []StatDefinition
	for _, g := range groups {
		for _, e := range g.Entries {
			if e.Type == "" {
				e.Type = g.ID
			}
			defs = append(defs, e)
		}
	}
	return defs, nil
}

func groupRank(id string) int {
	if rank, ok := statGroupOrder[strings.ToLower(id)]; ok {
		return rank
	}
	return len(statGroupOrder)
}

// Leagues lists the PoE2 trade leagues
func (c *TradeClient) Leagues(ctx context.Context) ([]League, error) {
	data, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/data/leagues", nil, c.fetchLimiter, "leagues")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []League `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode trade leagues: %w", err)
	}

	leagues := make([]League, 0, len(resp.Result))
	for _, l := range resp.Result {
		if l.Realm == "" || l.Realm == tradeRealm {
			leagues = append(leagues, l)
		}
	}
	return leagues, nil
}

// doRequest performs a trade API request with rate limiting and header tracking
func (c *TradeClient) doRequest(ctx context.Context, method, endpoint string, body []byte, limiter *AdaptiveLimiter, name string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create trade request: %w", err)
	}
	req.Header.Set("User-Agent", tradeUserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.poesessid != "" {
		req.AddCookie(&http.Cookie{Name: "POESESSID", Value: c.poesessid})
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.TradeAPILatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TradeRequestsTotal.WithLabelValues(name, "network").Inc()
		return nil, fmt.Errorf("trade %s request: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limiter.ParseHeaders(resp.Header)
	metrics.TradeRequestsTotal.WithLabelValues(name, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade %s response: %w", name, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := limiter.Handle429(parseRetryAfter(resp.Header))
		metrics.TradeRateLimitedTotal.WithLabelValues(limiter.policy).Inc()
		return nil, &RateLimitError{Policy: limiter.policy, RetryAfter: wait}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &TradeAPIError{Endpoint: name, StatusCode: resp.StatusCode, Message: tradeErrorMessage(data)}
	}

	limiter.HandleSuccess()
	return data, nil
}

// tradeErrorMessage extracts {"error":{"message":...}} or falls back to the raw body
func tradeErrorMessage(data []byte) string {
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		if strings.Contains(payload.Error.Message, "Unknown item base type") {
			return "unknown item type, the item may not be tradeable"
		}
		return payload.Error.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 100 {
		msg = msg[:100]
	}
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}
