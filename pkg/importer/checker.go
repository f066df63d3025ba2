package importer

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeConcurrency bounds parallel HEAD requests; ICA throttles bursts.
const probeConcurrency = 4

// Checker watches the upstream census files. It never downloads anything:
// a HEAD per source is enough to see whether the URL still answers and
// whether the publisher replaced the file.
type Checker struct {
	sources  *SourceDB
	logger   *slog.Logger
	interval time.Duration
	client   *http.Client
}

func NewChecker(sources *SourceDB, logger *slog.Logger, interval time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		sources:  sources,
		logger:   logger.With("component", "source-checker"),
		interval: max(interval, time.Minute),
		client: &http.Client{
			Timeout: 30 * time.Second,
			// A moved file is worth reporting, not following.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start checks once immediately, then on every tick until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.CheckAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckAll probes every source and stores the results.
func (c *Checker) CheckAll(ctx context.Context) {
	sources, err := c.sources.ListSources()
	if err != nil {
		c.logger.Error("list sources", "error", err)
		return
	}
	if len(sources) == 0 {
		return
	}

	var failed, changed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, src := range sources {
		g.Go(func() error {
			p := c.probe(gctx, src.URL)
			moved, err := c.sources.RecordProbe(src.AdapterID, p)
			if err != nil {
				c.logger.Error("record probe", "adapter", src.AdapterID, "error", err)
			}
			if !p.OK() {
				failed.Add(1)
				c.logger.Warn("source unreachable", "adapter", src.AdapterID, "url", src.URL,
					"status", p.Status, "error", p.Err)
			}
			if moved {
				changed.Add(1)
				c.logger.Info("source changed upstream", "adapter", src.AdapterID,
					"last_modified", p.LastModified)
			}
			return nil
		})
	}
	g.Wait()

	c.logger.Info("source check done", "sources", len(sources),
		"failed", failed.Load(), "changed", changed.Load())
}

func (c *Checker) probe(ctx context.Context, url string) Probe {
	p := Probe{At: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		p.Err = err.Error()
		return p
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		p.Err = err.Error()
		return p
	}
	resp.Body.Close()
	p.Status = resp.StatusCode
	p.LastModified = resp.Header.Get("Last-Modified")
	return p
}
