// Package rpc holds the clients of the importer and scraper services.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/satelit"
)

const (
	StartImportMethod   = "/import.ImportService/StartImport"
	StartScrapingMethod = "/scraping.ScraperService/StartScraping"
)

// Source is the sources' enum on the wire. Zero is left unspecified.
type Source int32

const (
	SourceUnspecified Source = 0
	SourceAnidb       Source = 1
)

// WireSource maps a source to the services' enum.
func WireSource(src satelit.Source) (Source, error) {
	switch src {
	case satelit.SourceAnidb:
		return SourceAnidb, nil
	default:
		return SourceUnspecified, fmt.Errorf("%w: %s", satelit.ErrUnknownSource, src)
	}
}

// Dial creates a client connection to target, which may be given as a URL.
// Connecting is lazy: an unreachable service shows up as a Transport error on
// the first call.
func Dial(target string) (*grpc.ClientConn, error) {
	target = strings.TrimPrefix(target, "http://")
	target = strings.TrimPrefix(target, "https://")

	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("error creating client for %s: %w", target, err)
	}

	return cc, nil
}

// ImportClient calls the importer, which ingests a snapshot and reports the
// titles it skipped.
type ImportClient struct {
	cc      grpc.ClientConnInterface
	timeout time.Duration
}

func NewImportClient(cc grpc.ClientConnInterface, timeout time.Duration) *ImportClient {
	return &ImportClient{
		cc:      cc,
		timeout: timeout,
	}
}

// StartImport blocks until the importer is done with the intent.
func (c *ImportClient) StartImport(ctx context.Context, intent *ImportIntent) (*ImportIntentResult, error) {
	out := new(ImportIntentResult)
	if err := invoke(ctx, c.cc, c.timeout, StartImportMethod, intent, out); err != nil {
		return nil, saterrs.E(saterrs.Op("rpc.StartImport"), err)
	}

	return out, nil
}

// ScraperClient calls the scraper, which scrapes whatever the imports scheduled.
type ScraperClient struct {
	cc      grpc.ClientConnInterface
	timeout time.Duration
}

func NewScraperClient(cc grpc.ClientConnInterface, timeout time.Duration) *ScraperClient {
	return &ScraperClient{
		cc:      cc,
		timeout: timeout,
	}
}

// StartScraping blocks until the scraper is done with the intent.
func (c *ScraperClient) StartScraping(ctx context.Context, intent *ScrapeIntent) (*ScrapeIntentResult, error) {
	out := new(ScrapeIntentResult)
	if err := invoke(ctx, c.cc, c.timeout, StartScrapingMethod, intent, out); err != nil {
		return nil, saterrs.E(saterrs.Op("rpc.StartScraping"), err)
	}

	return out, nil
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, timeout time.Duration, method string, in, out Message) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := cc.Invoke(ctx, method, in, out, grpc.ForceCodec(Codec{})); err != nil {
		return classify(err)
	}

	return nil
}

// classify sorts a failed call into Transport, when the service couldn't be
// reached in time, or Service, when it answered with an error.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return saterrs.E(saterrs.Transport, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return saterrs.E(saterrs.Transport, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return saterrs.E(saterrs.Transport, err)
	default:
		return saterrs.E(saterrs.Service, err)
	}
}
