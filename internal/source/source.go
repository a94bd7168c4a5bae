// Package source downloads the daily EPSS score files.
package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// currentFile redirects to the most recently published score file.
const currentFile = "epss_scores-current.csv.gz"

var locationDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// Options configures an HTTPFetcher.
type Options struct {
	BaseURL   string
	VerifyTLS bool
	RateLimit float64 // Requests per second; zero disables limiting
	Timeout   time.Duration
	Logger    *zap.Logger
}

// HTTPFetcher reads score files from the EPSS publisher over HTTP.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ contract.ScoreSource = &HTTPFetcher{} // Compile-time check

// NewHTTPFetcher builds a fetcher from opts.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = schema.DefaultSourceBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = contract.DefaultHTTPTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// URL returns the download URL of the score file for date.
func (f *HTTPFetcher) URL(date time.Time) string {
	return fmt.Sprintf("%s/epss_scores-%s.csv.gz", f.baseURL, schema.FormatDate(date))
}

// Fetch downloads and parses the scores published for date.
func (f *HTTPFetcher) Fetch(ctx context.Context, date time.Time) ([]schema.Score, error) {
	date = schema.Day(date)
	url := f.URL(date)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &schema.FetchError{Date: date, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &schema.FetchError{Date: date, URL: url, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &schema.FetchError{Date: date, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, &schema.NotAvailableError{Date: date}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &schema.FetchError{Date: date, URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &schema.FetchError{Date: date, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	scores, err := ParseScores(body, date)
	if err != nil {
		return nil, &schema.FetchError{Date: date, URL: url, Err: err}
	}

	f.logger.Debug("fetched scores",
		zap.String("date", schema.FormatDate(date)),
		zap.Int("rows", len(scores)),
		zap.Duration("elapsed", time.Since(start)))
	return scores, nil
}

// LatestDate asks the publisher which file the current alias points to.
func (f *HTTPFetcher) LatestDate(ctx context.Context) (time.Time, error) {
	url := f.baseURL + "/" + currentFile

	if err := f.limiter.Wait(ctx); err != nil {
		return time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return time.Time{}, err
	}

	// The date lives in the redirect target, so the redirect is not followed.
	client := *f.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve latest publication date: %w", err)
	}
	_ = resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return time.Time{}, fmt.Errorf("no Location header in response from %s (status %s)", url, resp.Status)
	}
	m := locationDateRe.FindString(location)
	if m == "" {
		return time.Time{}, fmt.Errorf("no date found in %s", location)
	}
	date, err := schema.ParseDate(m)
	if err != nil {
		return time.Time{}, err
	}

	f.logger.Debug("resolved latest publication date", zap.String("date", m))
	return date, nil
}

// ParseScores decodes a published score file. The body may be gzip compressed.
// The first line may be a "#model_version:...,score_date:..." comment and the
// percentile column is missing from the oldest files.
func ParseScores(body []byte, date time.Time) ([]schema.Score, error) {
	var r io.Reader = bytes.NewReader(body)
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty score file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cveCol, epssCol, pctCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cve":
			cveCol = i
		case "epss":
			epssCol = i
		case "percentile":
			pctCol = i
		}
	}
	if cveCol < 0 || epssCol < 0 {
		return nil, fmt.Errorf("header %v lacks cve or epss column", header)
	}

	var scores []schema.Score
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if cveCol >= len(rec) || epssCol >= len(rec) {
			return nil, fmt.Errorf("row %d: too few columns", line)
		}
		s := schema.Score{CVE: strings.TrimSpace(rec[cveCol]), Date: date}
		if s.EPSS, err = strconv.ParseFloat(strings.TrimSpace(rec[epssCol]), 64); err != nil {
			return nil, fmt.Errorf("row %d: invalid epss: %w", line, err)
		}
		if pctCol >= 0 && pctCol < len(rec) && strings.TrimSpace(rec[pctCol]) != "" {
			if s.Percentile, err = strconv.ParseFloat(strings.TrimSpace(rec[pctCol]), 64); err != nil {
				return nil, fmt.Errorf("row %d: invalid percentile: %w", line, err)
			}
		}
		scores = append(scores, s)
	}
	return scores, nil
}
