package newsapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptoprinter/internal/logger"

	"github.com/dgraph-io/ristretto"
	"github.com/tidwall/gjson"
)

const (
	DefaultEndpoint = "https://newsapi.org/v2/everything"
	maxBodyBytes    = 4 << 20
)

// Headline 是一条新闻标题及来源。
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

type Config struct {
	Endpoint  string
	APIKey    string
	PerSymbol int
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// Client queries newsapi.org and keeps headlines per symbol for CacheTTL.
type Client struct {
	cfg    Config
	client *http.Client
	cache  *ristretto.Cache
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PerSymbol <= 0 {
		cfg.PerSymbol = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.CacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        1e4,
			MaxCost:            1 << 10,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("news cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Close releases the cache goroutines.
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	return nil
}

// Headlines returns the newest headlines for each symbol. A symbol whose
// fetch fails is logged and left out; news never fails a cycle.
func (c *Client) Headlines(ctx context.Context, symbols []string) map[string][]Headline {
	out := make(map[string][]Headline, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		items, err := c.Fetch(ctx, sym)
		if err != nil {
			logger.Warnf("news: %s: %v", sym, err)
			continue
		}
		out[sym] = items
	}
	return out
}

// Fetch returns headlines for one query, from cache when fresh.
func (c *Client) Fetch(ctx context.Context, query string) ([]Headline, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if items, ok := c.cached(query); ok {
		return items, nil
	}
	items, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetWithTTL(query, items, 1, c.cfg.CacheTTL)
		c.cache.Wait()
	}
	return items, nil
}

func (c *Client) cached(query string) ([]Headline, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(query)
	if !ok {
		return nil, false
	}
	items, ok := v.([]Headline)
	return items, ok
}

func (c *Client) fetch(ctx context.Context, query string) ([]Headline, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", fmt.Sprintf("%d", c.cfg.PerSymbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid response (status %s)", resp.Status)
	}
	doc := gjson.ParseBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || doc.Get("status").String() == "error" {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("newsapi error: %s", msg)
	}
	return parseArticles(doc, c.cfg.PerSymbol), nil
}

func parseArticles(doc gjson.Result, limit int) []Headline {
	out := make([]Headline, 0, limit)
	doc.Get("articles").ForEach(func(_, article gjson.Result) bool {
		title := strings.TrimSpace(article.Get("title").String())
		if title == "" || title == "[Removed]" {
			return true
		}
		h := Headline{
			Title:  title,
			Source: strings.TrimSpace(article.Get("source.name").String()),
			URL:    article.Get("url").String(),
		}
		if ts, err := time.Parse(time.RFC3339, article.Get("publishedAt").String()); err == nil {
			h.PublishedAt = ts.UTC()
		}
		out = append(out, h)
		return len(out) < limit
	})
	return out
}
