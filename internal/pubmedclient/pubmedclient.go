// Package pubmedclient is the External Service Client (C3): paged id
// search and XML fetch against the NCBI eutils-style HTTP API, with
// bounded retries and WebEnv/query_key history paging for large result
// sets (§4.3).
package pubmedclient

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/observability"
)

const (
	maxRetries       = 3
	retryDelay       = 5 * time.Second
	historyThreshold = 10000
	pageBatchSize    = 1000
	interPageDelay   = 1 * time.Second

	esearchPath = "esearch.fcgi"
	efetchPath  = "efetch.fcgi"
)

// Client calls a configured eutils-style base URL.
type Client struct {
	baseURL string
	db      string
	http    *http.Client
}

// New builds a Client from the resolved external-service config.
func New(cfg config.ExternalServiceConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		db:      cfg.DB,
		http:    observability.NewHTTPClient(&http.Client{Timeout: timeout}),
	}
}

type esearchResult struct {
	Count    int    `xml:"Count"`
	WebEnv   string `xml:"WebEnv"`
	QueryKey string `xml:"QueryKey"`
	IDList   struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// SearchIDs returns every PMID published in [mindate, maxdate] (inclusive,
// "YYYY/MM/DD"), transparently paginating via WebEnv/query_key history in
// batches of 1000 when the total count is >= 10000.
func (c *Client) SearchIDs(ctx context.Context, mindate, maxdate string) ([]string, error) {
	args := url.Values{
		"db":         {c.db},
		"mindate":    {mindate},
		"maxdate":    {maxdate},
		"retmode":    {"xml"},
		"datetype":   {"pdat"},
		"retmax":     {strconv.Itoa(historyThreshold)},
		"usehistory": {"y"},
	}

	body, err := c.getWithRetry(ctx, esearchPath, args)
	if err != nil {
		return nil, fmt.Errorf("pubmedclient: esearch: %w", err)
	}

	var res esearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("pubmedclient: parse esearch response: %w", err)
	}

	log.Info().Int("count", res.Count).Str("mindate", mindate).Str("maxdate", maxdate).
		Msg("esearch found articles")

	if res.Count < historyThreshold {
		return res.IDList.IDs, nil
	}

	ids := make([]string, 0, res.Count)
	for retstart := 0; retstart < res.Count; retstart += pageBatchSize {
		fetchArgs := url.Values{
			"db":        {c.db},
			"WebEnv":    {res.WebEnv},
			"query_key": {res.QueryKey},
			"retmode":   {"xml"},
			"retstart":  {strconv.Itoa(retstart)},
			"retmax":    {strconv.Itoa(pageBatchSize)},
		}
		page, err := c.getWithRetry(ctx, efetchPath, fetchArgs)
		if err != nil {
			return nil, fmt.Errorf("pubmedclient: esearch page at %d: %w", retstart, err)
		}
		pageIDs, err := idsFromArticleSet(page)
		if err != nil {
			return nil, fmt.Errorf("pubmedclient: parse esearch page at %d: %w", retstart, err)
		}
		ids = append(ids, pageIDs...)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interPageDelay):
		}
	}
	return ids, nil
}

// FetchArticlesXML fetches the raw efetch XML batch for the given ids.
func (c *Client) FetchArticlesXML(ctx context.Context, ids []string) ([]byte, error) {
	args := url.Values{
		"db":      {c.db},
		"retmode": {"xml"},
	}
	for _, id := range ids {
		args.Add("id", id)
	}
	body, err := c.getWithRetry(ctx, efetchPath, args)
	if err != nil {
		return nil, fmt.Errorf("pubmedclient: efetch: %w", err)
	}
	return body, nil
}

type idListDoc struct {
	Articles []struct {
		PMID string `xml:"MedlineCitation>PMID"`
	} `xml:"PubmedArticle"`
}

func idsFromArticleSet(body []byte) ([]string, error) {
	var doc idListDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Articles))
	for _, a := range doc.Articles {
		ids = append(ids, a.PMID)
	}
	return ids, nil
}

// getWithRetry issues a GET against baseURL/path?args, retrying up to
// maxRetries times with a fixed 5-second linear backoff, per §4.3. The
// final failure is a fatal retrieval error.
func (c *Client) getWithRetry(ctx context.Context, path string, args url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, path, args.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.doGet(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		log.Error().Err(err).Int("attempt", attempt).Str("path", path).Msg("eutils request failed")
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, string(body))
	}
	return body, nil
}
