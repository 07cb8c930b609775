// Package agent implements the offline cache agent: a cache-first request
// interceptor that owns one version-named store.
//
// The agent does not run by itself. A host (see package worker) invokes its
// three hooks: OnInstall once when the agent is registered, OnActivate once it
// takes over, and OnFetch for every intercepted request.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/cache"
	"github.com/iTrooz/offline-cache-proxy/internal/cache/httpcache"
)

var (
	// ErrPassThrough is returned by OnFetch for requests the agent does not intercept.
	// The host must forward them to the network untouched.
	ErrPassThrough = errors.New("request not intercepted")
	// ErrOffline is returned when the network failed and no fallback document is stored
	ErrOffline = errors.New("network unavailable and no offline fallback stored")
)

// Source tells where a response handed out by OnFetch came from
type Source int

const (
	SourceCache Source = iota
	SourceNetwork
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the answer to a fetch event
type Result struct {
	Response *http.Response
	Source   Source
}

// Host is the lifecycle surface the hosting environment exposes to the agent
type Host interface {
	// SkipWaiting asks the host to activate the agent as soon as install completes
	SkipWaiting()
	// Claim makes the agent control every open client immediately
	Claim(ctx context.Context) error
}

// Config is supplied once at construction and never changes afterwards
type Config struct {
	// StoreName is the version-tagged name of the store owned by the agent
	StoreName string
	// Origin is the base URL Precache and Fallback are resolved against
	Origin *url.URL
	// Precache lists the resources stored during install
	Precache []string
	// Fallback is the document served when the network is unreachable
	Fallback string
	// MaxStoredBody caps the size of a live response kept in the store.
	// Zero selects DefaultMaxStoredBody, a negative value removes the cap.
	MaxStoredBody int64
}

// DefaultMaxStoredBody is the store cap used when Config.MaxStoredBody is zero
const DefaultMaxStoredBody = 64 << 20

// Agent is the offline cache agent
type Agent struct {
	config  Config
	storage cache.Storage
	network http.RoundTripper
	log     *logrus.Entry

	precacheURLs  []string
	fallbackURL   string
	fallbackKey   string
	maxStoredBody int64

	// background store writes
	pending sync.WaitGroup
}

// Option configures an Agent
type Option func(*Agent)

// WithLogger replaces the default logger
func WithLogger(log *logrus.Entry) Option {
	return func(a *Agent) {
		a.log = log
	}
}

// New creates an agent owning config.StoreName inside storage and reaching the
// network through network (http.DefaultTransport when nil).
func New(config Config, storage cache.Storage, network http.RoundTripper, opts ...Option) (*Agent, error) {
	if config.StoreName == "" {
		return nil, errors.New("store name is required")
	}
	if config.Origin == nil || !config.Origin.IsAbs() {
		return nil, errors.New("origin must be an absolute URL")
	}
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	if network == nil {
		network = http.DefaultTransport
	}

	a := &Agent{
		config:  config,
		storage: storage,
		network: network,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("store", config.StoreName)

	a.precacheURLs = make([]string, 0, len(config.Precache))
	for _, p := range config.Precache {
		u, err := a.resolve(p)
		if err != nil {
			return nil, fmt.Errorf("invalid precache entry %q: %w", p, err)
		}
		a.precacheURLs = append(a.precacheURLs, u)
	}

	fallbackURL, err := a.resolve(config.Fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback %q: %w", config.Fallback, err)
	}
	fallbackReq, err := http.NewRequest(http.MethodGet, fallbackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback %q: %w", config.Fallback, err)
	}
	fallbackKey, err := httpcache.GenerateKey(fallbackReq)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback %q: %w", config.Fallback, err)
	}
	a.fallbackURL = fallbackURL
	a.fallbackKey = fallbackKey

	a.maxStoredBody = config.MaxStoredBody
	if a.maxStoredBody == 0 {
		a.maxStoredBody = DefaultMaxStoredBody
	}

	return a, nil
}

// StoreName returns the name of the store owned by the agent
func (a *Agent) StoreName() string {
	return a.config.StoreName
}

// PrecacheURLs returns the manifest resolved against the origin
func (a *Agent) PrecacheURLs() []string {
	return append([]string(nil), a.precacheURLs...)
}

// Wait blocks until every background store write has finished
func (a *Agent) Wait() {
	a.pending.Wait()
}

func (a *Agent) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	resolved := a.config.Origin.ResolveReference(u)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// lookup returns the agent store if it exists
func (a *Agent) lookup() (*httpcache.HTTPCache, error) {
	store, err := a.storage.Lookup(a.config.StoreName)
	if err != nil {
		return nil, err
	}
	return httpcache.New(store), nil
}

// open opens the agent store, creating it if needed
func (a *Agent) open() (*httpcache.HTTPCache, error) {
	store, err := a.storage.Open(a.config.StoreName)
	if err != nil {
		return nil, err
	}
	return httpcache.New(store), nil
}
