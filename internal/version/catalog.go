package version

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultMinimum is the oldest version the launcher can run.
var DefaultMinimum = MustParse("1.16.0")

// CatalogConfig configures a Catalog.
type CatalogConfig struct {
	// URL of the JSON index: {"versions": [Descriptor...]}.
	URL string
	// Minimum drops older versions. Zero means DefaultMinimum.
	Minimum Version
	// IncludeBeta keeps beta builds in the result.
	IncludeBeta bool
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Catalog lists the versions the package source offers.
type Catalog struct {
	client      *resty.Client
	url         string
	minimum     Version
	includeBeta bool
	log         *zap.Logger
}

type catalogIndex struct {
	Versions []Descriptor `json:"versions"`
}

// NewCatalog creates a catalog client.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("catalog URL is required")
	}
	if cfg.Minimum.IsZero() {
		cfg.Minimum = DefaultMinimum
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "allycraft/1.0")

	return &Catalog{
		client:      client,
		url:         cfg.URL,
		minimum:     cfg.Minimum,
		includeBeta: cfg.IncludeBeta,
		log:         cfg.Logger,
	}, nil
}

// Available returns the installable versions, newest first.
func (c *Catalog) Available(ctx context.Context) ([]Descriptor, error) {
	var index catalogIndex
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&index).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch catalog: unexpected status %s", resp.Status())
	}

	out := Filter(index.Versions, c.minimum, c.includeBeta)
	c.log.Debug("catalog fetched",
		zap.Int("offered", len(index.Versions)),
		zap.Int("usable", len(out)))
	return out, nil
}

// Filter drops descriptors older than minimum, invalid ones, and betas unless
// includeBeta is set. The result is sorted newest first.
func Filter(in []Descriptor, minimum Version, includeBeta bool) []Descriptor {
	out := make([]Descriptor, 0, len(in))
	for _, d := range in {
		if d.Validate() != nil {
			continue
		}
		if d.Version.Less(minimum) {
			continue
		}
		if d.Beta && !includeBeta {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].Version.Less(out[i].Version)
	})
	return out
}
