package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"subservient/internal/logging"
	"subservient/internal/services"
)

// Subtitle is one search result reduced to the fields the pipeline uses.
type Subtitle struct {
	ID            string
	Language      string
	Release       string
	DownloadCount int64
	FileID        int64
	FileName      string
}

// DownloadLink is the short-lived signed URL returned by /download.
type DownloadLink struct {
	Link      string
	FileName  string
	Remaining int
}

type searchResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Language      string `json:"language"`
			Release       string `json:"release"`
			DownloadCount int64  `json:"download_count"`
			Files         []struct {
				FileID   int64  `json:"file_id"`
				FileName string `json:"file_name"`
			} `json:"files"`
		} `json:"attributes"`
	} `json:"data"`
}

// Search queries /subtitles for a language. Results keep the catalog order;
// entries without a downloadable file are dropped.
func (c *Client) Search(ctx context.Context, query, language string) ([]Subtitle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "opensubtitles", "search", "empty query", nil)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("languages", language)
	endpoint := c.cfg.BaseURL + "/subtitles?" + params.Encode()

	body, err := c.with503Retry(ctx, "search", func() ([]byte, error) {
		return c.authorized(ctx, "search", func(token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			c.setCommonHeaders(req)
			req.Header.Set("Authorization", "Bearer "+token)
			return req, nil
		})
	})
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "opensubtitles", "search", "decode response", err)
	}
	results := make([]Subtitle, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if len(item.Attributes.Files) == 0 {
			continue
		}
		file := item.Attributes.Files[0]
		results = append(results, Subtitle{
			ID:            item.ID,
			Language:      item.Attributes.Language,
			Release:       item.Attributes.Release,
			DownloadCount: item.Attributes.DownloadCount,
			FileID:        file.FileID,
			FileName:      file.FileName,
		})
	}
	c.logger.Debug("catalog search",
		logging.String(logging.FieldEventType, "catalog_search"),
		logging.String(logging.FieldLanguage, language),
		logging.String("query", query),
		logging.Int("results", len(results)),
	)
	return results, nil
}

// RequestDownload resolves a file id to a signed download link.
func (c *Client) RequestDownload(ctx context.Context, fileID int64) (DownloadLink, error) {
	payload, err := json.Marshal(map[string]int64{"file_id": fileID})
	if err != nil {
		return DownloadLink{}, fmt.Errorf("download: encode body: %w", err)
	}
	body, err := c.with503Retry(ctx, "download", func() ([]byte, error) {
		return c.authorized(ctx, "download", func(token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/download", bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			c.setCommonHeaders(req)
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
	})
	if err != nil {
		return DownloadLink{}, err
	}
	var parsed struct {
		Link      string `json:"link"`
		FileName  string `json:"file_name"`
		Remaining int    `json:"remaining"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return DownloadLink{}, services.Wrap(services.ErrExternalTool, "opensubtitles", "download", "decode response", err)
	}
	if strings.TrimSpace(parsed.Link) == "" {
		return DownloadLink{}, services.Wrap(services.ErrExternalTool, "opensubtitles", "download", "response carried no link", nil)
	}
	return DownloadLink{Link: parsed.Link, FileName: parsed.FileName, Remaining: parsed.Remaining}, nil
}

// Fetch downloads the subtitle bytes behind a signed link.
func (c *Client) Fetch(ctx context.Context, link string) ([]byte, error) {
	return c.with503Retry(ctx, "fetch", func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: new request: %w", err)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}
		return c.send(req, "fetch")
	})
}

// Download resolves fileID and fetches its content.
func (c *Client) Download(ctx context.Context, fileID int64) ([]byte, error) {
	link, err := c.RequestDownload(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, link.Link)
}

// with503Retry retries call on 503 up to download_retry_503 attempts with a
// delay of min(5s * attempt, 30s). Any other failure is returned at once.
func (c *Client) with503Retry(ctx context.Context, op string, call func() ([]byte, error)) ([]byte, error) {
	limit := c.cfg.DownloadRetry503
	for attempt := 1; ; attempt++ {
		body, err := call()
		if err == nil {
			return body, nil
		}
		if StatusCode(err) != http.StatusServiceUnavailable {
			return nil, err
		}
		if attempt >= limit {
			return nil, services.Wrap(services.ErrTransient, "opensubtitles", op,
				fmt.Sprintf("service unavailable after %d attempts", attempt), err)
		}
		delay := retry503Delay(attempt)
		c.logRetry(op, err, attempt, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
