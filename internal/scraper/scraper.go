package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/promo-reply-bot/internal/util"
)

const maxPromotionRunes = 4000

// Client fetches the product landing page and reduces it to prompt text.
type Client struct {
	httpClient     *http.Client
	allowedDomains []string
	selectors      SelectorConfig
	maxRetries     int
	retryBase      time.Duration
}

func New(allowedDomains []string, selectors SelectorConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		allowedDomains: allowedDomains,
		selectors:      selectors,
		maxRetries:     3,
		retryBase:      time.Second,
	}
}

// FetchPromotion scrapes pageURL and returns its readable promotional text.
func (c *Client) FetchPromotion(ctx context.Context, pageURL string) (string, error) {
	slog.Info("Fetching promotion page", "url", pageURL)

	var text string
	err := util.RetryWithBackoff(ctx, c.maxRetries, c.retryBase, func(attempt int) error {
		var err error
		text, err = c.attemptScrape(ctx, pageURL)
		if err != nil && attempt < c.maxRetries {
			slog.Warn("Scraping attempt failed", "attempt", attempt+1, "url", pageURL, "error", err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to scrape promotion page: %w", err)
	}
	return text, nil
}

func (c *Client) attemptScrape(ctx context.Context, pageURL string) (string, error) {
	doc, err := c.fetchHTMLContent(ctx, pageURL)
	if err != nil {
		return "", err
	}

	text := extractPromotion(doc, c.selectors.Landing)
	if text == "" {
		// Retrying will not change the page structure.
		return "", util.Permanent(fmt.Errorf("no promotional text found on %s", pageURL))
	}
	return text, nil
}

// extractPromotion collects the title, summary, structured data and body text
// of a landing page into plain paragraphs.
func extractPromotion(doc *goquery.Document, sel PageSelectors) string {
	var sections []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = collapseSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		sections = append(sections, s)
	}

	if sel.Title != "" {
		add(doc.Find(sel.Title).First().Text())
	}
	if sel.Description != "" {
		doc.Find(sel.Description).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, ok := s.Attr("content")
			if ok && strings.TrimSpace(content) != "" {
				add(content)
				return false
			}
			return true
		})
	}
	if sel.JSONLD != "" {
		doc.Find(sel.JSONLD).Each(func(_ int, s *goquery.Selection) {
			for _, thing := range parseJSONLD(s.Text()) {
				add(thing.summary())
			}
		})
	}

	root := firstMatch(doc.Selection, sel.Content)
	if sel.Ignore != "" {
		root.Find(sel.Ignore).Remove()
	}
	var lines []string
	root.Find(sel.Blocks).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a <p> inside an <li>) are picked up through their parent.
		if s.ParentsFiltered(sel.Blocks).Length() > 0 {
			return
		}
		line := collapseSpace(s.Text())
		if line == "" || seen[line] {
			return
		}
		seen[line] = true
		switch {
		case s.Is("h1, h2, h3"):
			line = "## " + line
		case s.Is("li"):
			line = "- " + line
		}
		lines = append(lines, line)
	})
	if len(lines) > 0 {
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return util.TruncateRunes(strings.Join(sections, "\n\n"), maxPromotionRunes)
}

// firstMatch tries each comma separated selector in order of preference.
func firstMatch(s *goquery.Selection, selectors string) *goquery.Selection {
	for _, candidate := range strings.Split(selectors, ",") {
		if found := s.Find(strings.TrimSpace(candidate)).First(); found.Length() > 0 {
			return found
		}
	}
	return s.Find(selectors).First()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *Client) fetchHTMLContent(ctx context.Context, urlStr string) (*goquery.Document, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to parse URL %s: %w", urlStr, err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, util.Permanent(fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme))
	}

	hostname := parsedURL.Hostname()
	if !slices.Contains(c.allowedDomains, hostname) {
		return nil, util.Permanent(fmt.Errorf("security violation: URL hostname %s is not in allowlist", hostname))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to create request for URL %s: %w", urlStr, err))
	}
	req.Header.Set("User-Agent", "promo-reply-bot/1.0")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, util.Permanent(err)
		}
		return nil, err
	}

	return goquery.NewDocumentFromReader(res.Body)
}
