package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	// ScoutAPIBase is the base URL of the poe2scout price aggregation API
	ScoutAPIBase = "https://poe2scout.com/api"

	scoutRequestDelay = time.Second
	scoutTimeout      = 10 * time.Second
	scoutHighQuantity = 10
)

// ErrScoutNotFound is returned when poe2scout has no price for an item
var ErrScoutNotFound = errors.New("item not found on poe2scout")

var (
	scoutUniqueCategories   = []string{"weapon", "armour", "accessory", "flask", "jewel"}
	scoutCurrencyCategories = []string{"currency", "fragments", "runes", "essences", "ultimatum", "breach", "ritual", "delirium", "abyss"}
)

// CurrencyRates maps a currency id to its value in chaos orbs
type CurrencyRates map[string]float64

// DefaultCurrencyRates are used until poe2scout rates are loaded
func DefaultCurrencyRates() CurrencyRates {
	return CurrencyRates{
		"chaos":   1.0,
		"exalted": 50.0,
		"divine":  150.0,
		"gold":    0.001,
		"regal":   0.5,
		"alch":    0.1,
	}
}

// ToChaos converts an amount of currency to its chaos value. Unknown currencies count 1:1.
func (r CurrencyRates) ToChaos(amount float64, currency string) float64 {
	key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(currency)), "-orb")
	if key == "alchemy" {
		key = "alch"
	}
	if rate, ok := r[key]; ok {
		return amount * rate
	}
	return amount
}

// ScoutClient looks up aggregated prices on poe2scout. Found items are kept in memory
// for the lifetime of the process.
type ScoutClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter

	mu          sync.RWMutex
	league      string
	items       map[string]*scoutItem
	rates       CurrencyRates
	divinePrice float64 // divine price in exalted
}

type scoutItem struct {
	Name         string  `json:"name"`
	Text         string  `json:"text"`
	APIID        string  `json:"apiId"`
	CurrentPrice float64 `json:"currentPrice"`
	IconURL      string  `json:"iconUrl"`
	PriceLogs    []*struct {
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	} `json:"priceLogs"`
}

func (i *scoutItem) displayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Text
}

func NewScoutClient(baseURL, league string) *ScoutClient {
	if baseURL == "" {
		baseURL = ScoutAPIBase
	}
	return &ScoutClient{
		httpClient:  &http.Client{Timeout: scoutTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		limiter:     rate.NewLimiter(rate.Every(scoutRequestDelay), 1),
		league:      league,
		items:       make(map[string]*scoutItem),
		rates:       DefaultCurrencyRates(),
		divinePrice: 100,
	}
}

// SetLeague switches leagues and drops cached items
func (c *ScoutClient) SetLeague(league string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if league != c.league {
		c.league = league
		c.items = make(map[string]*scoutItem)
	}
}

// Rates returns a copy of the current chaos conversion rates
func (c *ScoutClient) Rates() CurrencyRates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rates := make(CurrencyRates, len(c.rates))
	for k, v := range c.rates {
		rates[k] = v
	}
	return rates
}

// LoadRates updates divine and exalted rates from the league summary
func (c *ScoutClient) LoadRates(ctx context.Context) error {
	var leagues []struct {
		Value            string  `json:"value"`
		DivinePrice      float64 `json:"divinePrice"`
		ChaosDivinePrice float64 `json:"chaosDivinePrice"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/leagues", &leagues); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, lg := range leagues {
		if lg.Value != c.league {
			continue
		}
		if lg.DivinePrice > 0 {
			c.divinePrice = lg.DivinePrice
		}
		if lg.ChaosDivinePrice > 0 {
			c.rates["divine"] = lg.ChaosDivinePrice
			c.rates["exalted"] = lg.ChaosDivinePrice / c.divinePrice
		}
		log.Printf("Poe2scout: rates for %s: divine=%.1fc exalted=%.3fc", c.league, c.rates["divine"], c.rates["exalted"])
		return nil
	}
	return fmt.Errorf("league %q not listed by poe2scout", c.league)
}

// Price looks up a unique or currency item by name
func (c *ScoutClient) Price(ctx context.Context, name string, rarity models.Rarity) (*models.ScoutPrice, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, ErrScoutNotFound
	}

	c.mu.RLock()
	cached, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		metrics.ScoutRequestsTotal.WithLabelValues("cache").Inc()
		return c.format(cached), nil
	}

	var kind string
	var categories []string
	switch rarity {
	case models.RarityUnique:
		kind, categories = "unique", scoutUniqueCategories
	case models.RarityCurrency:
		kind, categories = "currency", scoutCurrencyCategories
	default:
		return nil, ErrScoutNotFound
	}

	c.mu.RLock()
	league := c.league
	c.mu.RUnlock()

	for _, category := range categories {
		endpoint := fmt.Sprintf("%s/items/%s/%s?league=%s&search=%s",
			c.baseURL, kind, category, url.QueryEscape(league), url.QueryEscape(name))

		var page struct {
			Items []*scoutItem `json:"items"`
		}
		if err := c.doRequest(ctx, endpoint, &page); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			debugLog("poe2scout %s/%s search failed: %v", kind, category, err)
			continue
		}

		for _, item := range page.Items {
			if item != nil && strings.ToLower(item.displayName()) == key {
				c.mu.Lock()
				c.items[key] = item
				c.mu.Unlock()
				metrics.ScoutRequestsTotal.WithLabelValues("found").Inc()
				return c.format(item), nil
			}
		}
	}

	metrics.ScoutRequestsTotal.WithLabelValues("not_found").Inc()
	return nil, ErrScoutNotFound
}

// format converts poe2scout's exalted price into all display currencies
func (c *ScoutClient) format(item *scoutItem) *models.ScoutPrice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quantity := 0
	for _, entry := range item.PriceLogs {
		if entry != nil && entry.Quantity > 0 {
			quantity = entry.Quantity
			break
		}
	}

	price := &models.ScoutPrice{
		Name:       item.displayName(),
		Exalted:    item.CurrentPrice,
		Chaos:      item.CurrentPrice * c.rates["exalted"],
		Listings:   quantity,
		Confidence: models.ConfidenceLow,
		Icon:       item.IconURL,
	}
	if c.divinePrice > 0 {
		price.Divine = item.CurrentPrice / c.divinePrice
	}
	if quantity >= scoutHighQuantity {
		price.Confidence = models.ConfidenceHigh
	}
	return price
}

func (c *ScoutClient) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", tradeUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ScoutRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ScoutRequestsTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("poe2scout returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
