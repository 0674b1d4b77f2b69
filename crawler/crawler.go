// Package crawler fetches paper metadata and PDFs from a scholarly
// index and hands them to the loader through its source directory.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type Config struct {
	// SearchURL is the index's HTML search endpoint; keyword and page
	// go in as query parameters.
	SearchURL string
	SourceDir string
	PageSize  int
	// RequestsPerSecond throttles all outgoing requests to the index.
	RequestsPerSecond float64
}

// Item is one paper listing scraped from a search result page.
type Item struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	URL       string `json:"url"`
	PDFURL    string `json:"-"`
	Abstract  string `json:"abstract"`
}

type Crawler struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config) *Crawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &Crawler{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  slog.Default(),
	}
}

// Run crawls up to pages of search results for keyword, deduplicates
// by source URL and downloads each PDF with its metadata sidecar.
func (c *Crawler) Run(ctx context.Context, keyword string, pages int) error {
	if err := os.MkdirAll(c.cfg.SourceDir, 0o755); err != nil {
		return err
	}

	seen := make(map[string]bool)
	var downloaded, failed int
	for page := 1; page <= pages; page++ {
		items, err := c.SearchPage(ctx, keyword, page)
		if err != nil {
			return fmt.Errorf("search page %d: %w", page, err)
		}
		if len(items) == 0 {
			c.logger.Info("[CRAWLER] empty result page, stopping", "page", page)
			break
		}

		for _, item := range items {
			if item.URL == "" || seen[item.URL] {
				continue
			}
			seen[item.URL] = true

			if err := c.Download(ctx, item); err != nil {
				c.logger.Warn("[CRAWLER] download failed", "title", item.Title, "error", err)
				failed++
				continue
			}
			downloaded++
		}
	}
	c.logger.Info("[CRAWLER] crawl finished", "keyword", keyword, "downloaded", downloaded, "failed", failed)
	return nil
}

// SearchPage fetches and parses one page of search results.
func (c *Crawler) SearchPage(ctx context.Context, keyword string, page int) ([]Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("bad search url: %w", err)
	}
	q := u.Query()
	q.Set("q", keyword)
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = q.Encode()

	resp, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return ParseSearchPage(resp.Body)
}

// ParseSearchPage extracts paper listings from a search result page.
func ParseSearchPage(r io.Reader) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var items []Item
	doc.Find(".paper-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".paper-title a").First()
		item := Item{
			Title:     strings.TrimSpace(link.Text()),
			Author:    strings.TrimSpace(s.Find(".paper-authors").First().Text()),
			Publisher: strings.TrimSpace(s.Find(".paper-publisher").First().Text()),
			Abstract:  strings.TrimSpace(s.Find(".paper-abstract").First().Text()),
		}
		if href, ok := link.Attr("href"); ok {
			item.URL = strings.TrimSpace(href)
		}
		if href, ok := s.Find("a.pdf-link").First().Attr("href"); ok {
			item.PDFURL = strings.TrimSpace(href)
		}
		if year, err := strconv.Atoi(strings.TrimSpace(s.Find(".paper-year").First().Text())); err == nil {
			item.Year = year
		}
		if item.Title != "" {
			items = append(items, item)
		}
	})
	return items, nil
}

// Download fetches the item's PDF into the loader source directory
// and writes the metadata sidecar next to it.
func (c *Crawler) Download(ctx context.Context, item Item) error {
	if item.PDFURL == "" {
		return fmt.Errorf("no pdf url for %q", item.Title)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.get(ctx, item.PDFURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	base := SanitizeFilename(item.Title)
	pdfPath := filepath.Join(c.cfg.SourceDir, base+".pdf")
	tmpPath := pdfPath + ".part"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	meta, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.WriteFile(filepath.Join(c.cfg.SourceDir, base+".json"), meta, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Rename last so the loader never sees a half-written PDF.
	if err := os.Rename(tmpPath, pdfPath); err != nil {
		return err
	}
	c.logger.Info("[CRAWLER] downloaded", "title", item.Title, "path", pdfPath)
	return nil
}

// get issues a GET with one retry on transient failure.
func (c *Crawler) get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.doGet(ctx, rawURL)
	if err == nil {
		return resp, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return c.doGet(ctx, rawURL)
}

func (c *Crawler) doGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes a paper title safe for the filesystem and
// caps its length.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len(name) > 150 {
		name = name[:150]
	}
	if name == "" {
		name = "untitled"
	}
	return name
}
