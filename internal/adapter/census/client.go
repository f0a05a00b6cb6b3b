// Package census acquires raw variables from the Census data API in bounded
// batches and assembles them into one numeric table per dataset.
package census

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/frame"
	"github.com/tractworks/hazidx/internal/observability"
)

// maxBatchVars is the remote source's per-request variable ceiling.
const maxBatchVars = 50

// nameColumn is the human-readable geography label, requested with every
// batch.
const nameColumn = "NAME"

// Client pulls raw variables for one dataset and geography selection.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a client for the given API root (e.g.
// "https://api.census.gov/data"). The key may be empty; the timeout bounds
// every batch request.
func NewClient(baseURL, key string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Acquire retrieves the tokens in batches of at most 50, left-joins the
// batch tables on the geography keys anchored at the first batch, and
// coerces every non-geography, non-NAME column to numeric. Batch order
// follows token order, so downloads are reproducible.
func (c *Client) Acquire(ctx context.Context, dataset string, year int, geo domain.Geography, tokens []string) (*frame.Frame, error) {
	if len(tokens) == 0 {
		return nil, &domain.FormatError{Dataset: dataset, Reason: "no variables requested"}
	}

	var merged *frame.Frame
	for start := 0; start < len(tokens); start += maxBatchVars {
		batch := tokens[start:min(start+maxBatchVars, len(tokens))]
		bf, err := c.fetchBatch(ctx, dataset, year, geo, batch)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			// The first batch anchors the row set, so its key tuples must be
			// unique; later batches are checked by the join itself.
			if err := frame.CheckUniqueKeys(bf, geo.Keys()); err != nil {
				var je *domain.JoinError
				if errors.As(err, &je) {
					je.Dataset = dataset
				}
				return nil, err
			}
			merged = bf
			continue
		}
		merged, err = frame.LeftJoin(merged, bf, geo.Keys())
		if err != nil {
			var je *domain.JoinError
			if errors.As(err, &je) {
				je.Dataset = dataset
			}
			return nil, err
		}
	}

	merged.CoerceNumeric(append(geo.Keys(), nameColumn))
	return merged, nil
}

func (c *Client) fetchBatch(ctx context.Context, dataset string, year int, geo domain.Geography, batch []string) (*frame.Frame, error) {
	params := url.Values{
		"get": {strings.Join(append(append([]string{}, batch...), nameColumn), ",")},
		"for": {geo.ForClause()},
		"in":  {geo.InClause()},
	}
	if c.key != "" {
		params.Set("key", c.key)
	}
	endpoint := fmt.Sprintf("%s/%d/%s?%s", c.baseURL, year, dataset, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.TransportError{Dataset: dataset, Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.BatchRequests.Inc()
	c.metrics.BatchRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.TransportError{Dataset: dataset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &domain.TransportError{
			Dataset: dataset,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}
	}

	// The API returns a JSON array whose first element is the header row.
	// Cells may be null for suppressed values.
	var raw [][]*string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &domain.TransportError{Dataset: dataset, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(raw) < 2 {
		return nil, &domain.FormatError{Dataset: dataset, Reason: "response has a header row but no data rows"}
	}

	rows := make([][]string, len(raw))
	for i, src := range raw {
		row := make([]string, len(src))
		for j, cell := range src {
			if cell != nil {
				row[j] = *cell
			}
		}
		rows[i] = row
	}

	f, err := frame.FromRows(rows[0], rows[1:])
	if err != nil {
		return nil, &domain.FormatError{Dataset: dataset, Reason: err.Error()}
	}
	for _, k := range geo.Keys() {
		if !f.Has(k) {
			return nil, &domain.FormatError{Dataset: dataset, Reason: fmt.Sprintf("response lacks geography column %q", k)}
		}
	}

	c.logger.Debug("batch fetched", "dataset", dataset, "variables", len(batch), "rows", f.NumRows())
	return f, nil
}
