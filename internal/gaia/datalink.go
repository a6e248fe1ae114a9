package gaia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxProductSize caps a single DataLink product download.
const maxProductSize = 64 << 20

// DataLinkClient retrieves data products from the Gaia data server.
type DataLinkClient struct {
	settings
	baseURL string
}

// NewDataLinkClient creates a client for the data server rooted at baseURL.
func NewDataLinkClient(baseURL string, opts ...Option) *DataLinkClient {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &DataLinkClient{
		settings: s,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// EpochPhotometryURL is the retrieval URL for a DR2 source's per-epoch
// photometry in CSV form.
func (c *DataLinkClient) EpochPhotometryURL(sourceID string) string {
	params := url.Values{}
	params.Set("ID", "Gaia DR2 "+sourceID)
	params.Set("RETRIEVAL_TYPE", "EPOCH_PHOTOMETRY")
	params.Set("FORMAT", "CSV")
	return fmt.Sprintf("%s/data?%s", c.baseURL, params.Encode())
}

// EpochPhotometry downloads the DR2 epoch photometry table for sourceID.
// A source without photometry yields an empty slice and no error; the data
// server answers such requests with an empty body (or 204/404).
func (c *DataLinkClient) EpochPhotometry(ctx context.Context, sourceID string) ([]byte, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("source id cannot be empty")
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.EpochPhotometryURL(sourceID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		return nil, newStatusError("epoch photometry", resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProductSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxProductSize {
		return nil, fmt.Errorf("epoch photometry for %s exceeds %d bytes", sourceID, maxProductSize)
	}
	return body, nil
}
