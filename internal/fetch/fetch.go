package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultArchiveURL lists the published HTS revisions.
const DefaultArchiveURL = "https://www.usitc.gov/harmonized_tariff_information/hts/archive/list"

// Client downloads the latest tariff-schedule CSV from the USITC archive
// listing.
type Client struct {
	archiveURL string
	client     *http.Client
}

type Config struct {
	ArchiveURL string
	Timeout    time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{archiveURL: cfg.ArchiveURL, client: &http.Client{Timeout: timeout}}
}

// LatestCSV finds the first CSV link on the archive page and streams it to
// destPath. Returns the resolved download URL.
func (c *Client) LatestCSV(ctx context.Context, destPath string) (string, error) {
	page, err := c.get(ctx, c.archiveURL)
	if err != nil {
		return "", fmt.Errorf("fetch archive listing: %w", err)
	}
	links, err := CSVLinks(page, c.archiveURL)
	page.Close()
	if err != nil {
		return "", fmt.Errorf("parse archive listing: %w", err)
	}
	if len(links) == 0 {
		return "", fmt.Errorf("no CSV links found at %s", c.archiveURL)
	}
	chosen := links[0]

	body, err := c.get(ctx, chosen)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", chosen, err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("download %s: %w", chosen, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return chosen, nil
}

// get issues a GET with one retry on transport failure.
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
		}
		return resp.Body, nil
	}
	return nil, lastErr
}

// CSVLinks extracts anchor targets that end in .csv or whose link text
// mentions csv, resolved against baseURL, in document order.
func CSVLinks(r io.Reader, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			text := strings.ToLower(nodeText(n))
			if href != "" && (strings.HasSuffix(strings.ToLower(href), ".csv") || strings.Contains(text, "csv")) {
				if u, err := base.Parse(href); err == nil {
					links = append(links, u.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
