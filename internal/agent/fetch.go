package agent

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/cache/httpcache"
	"github.com/iTrooz/offline-cache-proxy/internal/metrics"
)

// OnFetch answers a GET request cache-first. Other methods are not intercepted
// and yield ErrPassThrough.
//
// A network response is handed back as soon as its headers arrive. Its body
// streams to the caller and is stored once the caller has read all of it.
func (a *Agent) OnFetch(ctx context.Context, req *http.Request) (*Result, error) {
	if req.Method != http.MethodGet {
		return nil, ErrPassThrough
	}

	log := a.log.WithFields(logrus.Fields{
		"event_id": uuid.NewString(),
		"method":   req.Method,
		"url":      req.URL.String(),
	})

	// the store is looked up once per event and never created here
	store, err := a.lookup()
	if err != nil {
		log.WithError(err).Debug("Store unavailable, going to network")
	}

	if store != nil {
		resp, err := store.GetReq(req)
		if err != nil {
			log.WithError(err).Debug("Store lookup failed")
		} else if resp != nil {
			log.Debug("Serving from store")
			metrics.ObserveFetch(SourceCache.String())
			return &Result{Response: resp, Source: SourceCache}, nil
		}
	}

	netReq := req.Clone(ctx)
	netReq.RequestURI = ""
	resp, err := a.network.RoundTrip(netReq)
	if err != nil {
		return a.fallback(store, req, log, err)
	}

	switch {
	case resp.StatusCode != http.StatusOK:
		log.Debugf("Network answered %d, not storing", resp.StatusCode)
	case store == nil:
		log.Debug("No store to keep the response in")
	default:
		a.teeToStore(store, req, resp, log)
	}

	log.Debug("Serving from network")
	metrics.ObserveFetch(SourceNetwork.String())
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

// teeToStore swaps resp.Body for one that keeps a copy as the caller reads it.
// The headers are snapshotted now since the caller may change them.
func (a *Agent) teeToStore(store *httpcache.HTTPCache, req *http.Request, resp *http.Response, log *logrus.Entry) {
	keyReq := &http.Request{Method: req.Method, URL: cloneURL(req.URL)}
	snapshot := cloneResponse(resp, nil)

	resp.Body = newTeeBody(resp.Body, resp.ContentLength, a.maxStoredBody,
		func(body []byte) {
			a.storeAsync(store, keyReq, cloneResponse(snapshot, body), log)
		},
		func(reason string) {
			log.Debugf("Not storing response: %s", reason)
		},
	)
}

// storeAsync persists resp under req without blocking the caller.
// Failures are not reported to anyone.
func (a *Agent) storeAsync(store *httpcache.HTTPCache, req *http.Request, resp *http.Response, log *logrus.Entry) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		if err := store.SetReq(req, resp); err != nil {
			log.WithError(err).Debug("Failed to store network response")
			metrics.ObserveStoreWriteFailure()
		}
	}()
}

// fallback answers with the stored fallback document, whatever was requested
func (a *Agent) fallback(store *httpcache.HTTPCache, req *http.Request, log *logrus.Entry, cause error) (*Result, error) {
	log.WithError(cause).Info("Network request failed, serving offline fallback")

	if store == nil {
		return nil, fmt.Errorf("%w: %w", ErrOffline, cause)
	}
	resp, err := store.GetKey(a.fallbackKey)
	if err != nil || resp == nil {
		if err != nil {
			log.WithError(err).Warn("Failed to read offline fallback")
		}
		return nil, fmt.Errorf("%w: %w", ErrOffline, cause)
	}

	resp.Request = req
	metrics.ObserveFetch(SourceFallback.String())
	return &Result{Response: resp, Source: SourceFallback}, nil
}
