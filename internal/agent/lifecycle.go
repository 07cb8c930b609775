package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/iTrooz/offline-cache-proxy/internal/cache/httpcache"
	"github.com/iTrooz/offline-cache-proxy/internal/metrics"
)

// OnInstall opens the store and precaches the manifest.
// A precache failure is logged and does not fail the install.
func (a *Agent) OnInstall(ctx context.Context, host Host) error {
	a.log.Info("Installing")

	store, err := a.open()
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", a.config.StoreName, err)
	}

	a.log.Infof("Pre-caching %d assets", len(a.precacheURLs))
	if err := a.precache(ctx, store); err != nil {
		a.log.WithError(err).Warn("Pre-cache failed (non-fatal)")
		metrics.ObservePrecache(false)
	} else {
		metrics.ObservePrecache(true)
	}

	a.log.Info("Install complete")
	host.SkipWaiting()
	return nil
}

// precache fetches every manifest entry concurrently and stores them only if
// all of them succeeded.
func (a *Agent) precache(ctx context.Context, store *httpcache.HTTPCache) error {
	type fetched struct {
		req  *http.Request
		resp *http.Response
	}
	results := make([]fetched, len(a.precacheURLs))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range a.precacheURLs {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, target, nil)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", target, err)
			}
			resp, err := a.network.RoundTrip(req)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", target, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if !precacheable(resp.StatusCode) {
				return fmt.Errorf("fetching %s: unexpected status %d", target, resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading %s: %w", target, err)
			}
			results[i] = fetched{req: req, resp: cloneResponse(resp, body)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if err := store.SetReq(r.req, r.resp); err != nil {
			return fmt.Errorf("storing %s: %w", r.req.URL, err)
		}
	}
	return nil
}

func precacheable(status int) bool {
	return status >= 200 && status < 300 && status != http.StatusPartialContent
}

// OnActivate deletes every store but the agent's own, then claims the clients
func (a *Agent) OnActivate(ctx context.Context, host Host) error {
	a.log.Info("Activating")

	names, err := a.storage.Names()
	if err != nil {
		return fmt.Errorf("failed to list stores: %w", err)
	}

	for _, name := range names {
		if name == a.config.StoreName {
			continue
		}
		a.log.Infof("Deleting old store: %s", name)
		if _, err := a.storage.Delete(name); err != nil {
			return fmt.Errorf("failed to delete store %s: %w", name, err)
		}
		metrics.ObserveStoreDeleted()
	}

	a.log.Info("Activation complete")
	return host.Claim(ctx)
}
