// Package indexer talks to the indexer service, which publishes a snapshot of each
// source's catalog and describes the newest one.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/satelit"
)

// Descriptor is the indexer's description of a snapshot.
type Descriptor struct {
	ID     string
	Hash   string
	Source satelit.Source
}

type descriptorResp struct {
	ID     string          `json:"id"`
	Hash   string          `json:"hash"`
	Source json.RawMessage `json:"source"`
}

type Client struct {
	http *http.Client
	urls *URLBuilder
}

// NewClient bounds every call to the indexer by timeout.
func NewClient(urls *URLBuilder, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		urls: urls,
	}
}

// Latest fetches the descriptor of the newest snapshot.
func (c *Client) Latest(ctx context.Context) (Descriptor, error) {
	const op saterrs.Op = "indexer.Latest"

	u, err := c.urls.Latest()
	if err != nil {
		return Descriptor{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Descriptor{}, saterrs.E(op, saterrs.HTTP, fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Descriptor{}, saterrs.E(op, saterrs.HTTP, fmt.Errorf("error getting latest index: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Descriptor{}, saterrs.E(op, saterrs.HTTP, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	var body descriptorResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Descriptor{}, saterrs.E(op, saterrs.HTTP, fmt.Errorf("error decoding latest index: %w", err))
	}

	if body.Hash == "" {
		return Descriptor{}, saterrs.E(op, saterrs.Service, "indexer sent a snapshot without a hash")
	}
	src, err := satelit.SourceFromJSON(body.Source)
	if err != nil {
		return Descriptor{}, saterrs.E(op, saterrs.Service, err)
	}

	return Descriptor{
		ID:     body.ID,
		Hash:   body.Hash,
		Source: src,
	}, nil
}
