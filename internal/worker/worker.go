// Package worker hosts agents the way a browser hosts background workers:
// it runs their install and activate hooks, tracks which registration is
// active, and routes fetch events to the one controlling the clients.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/agent"
	"github.com/iTrooz/offline-cache-proxy/internal/metrics"
)

// Handler is the set of lifecycle hooks a hosted agent implements
type Handler interface {
	OnInstall(ctx context.Context, host agent.Host) error
	OnActivate(ctx context.Context, host agent.Host) error
	OnFetch(ctx context.Context, req *http.Request) (*agent.Result, error)
}

// State of a registration
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Registration is one hosted agent. It implements agent.Host for that agent.
type Registration struct {
	ID        string
	container *Container
	handler   Handler

	mu          sync.Mutex
	state       State
	skipWaiting bool
}

func (r *Registration) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registration) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	metrics.ObserveTransition(state.String())
	r.container.log.WithField("registration", r.ID).Debugf("State: %s", state)
}

// SkipWaiting lets the registration activate without waiting for the current one to be released
func (r *Registration) SkipWaiting() {
	r.mu.Lock()
	r.skipWaiting = true
	r.mu.Unlock()
}

func (r *Registration) skipsWaiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipWaiting
}

// Claim makes the registration control the clients right away
func (r *Registration) Claim(ctx context.Context) error {
	return r.container.claim(r)
}

// Container hosts at most one active and one waiting registration
type Container struct {
	network http.RoundTripper
	log     *logrus.Entry

	mu      sync.Mutex
	active  *Registration
	waiting *Registration
	// claimed is the registration that called Claim, cleared whenever control changes hands
	claimed *Registration
}

// NewContainer creates a container forwarding uncontrolled traffic to network
func NewContainer(network http.RoundTripper, log *logrus.Entry) *Container {
	if network == nil {
		network = http.DefaultTransport
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Container{network: network, log: log}
}

// Register installs handler and, unless it has to wait, activates it.
// An install failure leaves the registration redundant and the current one in place.
func (c *Container) Register(ctx context.Context, handler Handler) (*Registration, error) {
	reg := &Registration{
		ID:        uuid.NewString(),
		container: c,
		handler:   handler,
	}
	reg.setState(StateInstalling)

	if err := handler.OnInstall(ctx, reg); err != nil {
		reg.setState(StateRedundant)
		return reg, fmt.Errorf("install failed: %w", err)
	}
	reg.setState(StateInstalled)

	c.mu.Lock()
	if c.active != nil && !reg.skipsWaiting() {
		previous := c.waiting
		c.waiting = reg
		c.mu.Unlock()
		if previous != nil {
			previous.setState(StateRedundant)
		}
		c.log.WithField("registration", reg.ID).Info("Waiting for the active worker to be released")
		return reg, nil
	}
	c.mu.Unlock()

	return reg, c.activate(ctx, reg)
}

// Release drops control of the clients and promotes the waiting registration, if any
func (c *Container) Release(ctx context.Context) error {
	c.mu.Lock()
	c.claimed = nil
	waiting := c.waiting
	c.mu.Unlock()

	if waiting == nil {
		return nil
	}
	return c.activate(ctx, waiting)
}

func (c *Container) activate(ctx context.Context, reg *Registration) error {
	c.mu.Lock()
	previous := c.active
	c.active = reg
	if c.waiting == reg {
		c.waiting = nil
	}
	if c.claimed != reg {
		c.claimed = nil
	}
	c.mu.Unlock()

	if previous != nil && previous != reg {
		previous.setState(StateRedundant)
	}

	reg.setState(StateActivating)
	err := reg.handler.OnActivate(ctx, reg)
	reg.setState(StateActivated)
	if err != nil {
		// activation completes anyway; the agent simply did not get to claim
		c.log.WithField("registration", reg.ID).WithError(err).Error("Activate handler failed")
		return fmt.Errorf("activate failed: %w", err)
	}
	return nil
}

func (c *Container) claim(reg *Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != reg {
		return errors.New("only the active worker can claim clients")
	}
	c.claimed = reg
	return nil
}

// Active returns the active registration, or nil
func (c *Container) Active() *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Waiting returns the registration waiting to activate, or nil
func (c *Container) Waiting() *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// controller returns the registration fetch events must go to, or nil
func (c *Container) controller() *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.claimed == nil || c.claimed != c.active || c.claimed.State() != StateActivated {
		return nil
	}
	return c.claimed
}

// Dispatch hands req to the controlling agent.
// It returns agent.ErrPassThrough when nobody intercepts the request.
func (c *Container) Dispatch(ctx context.Context, req *http.Request) (*agent.Result, error) {
	reg := c.controller()
	if reg == nil {
		return nil, agent.ErrPassThrough
	}
	return reg.handler.OnFetch(ctx, req)
}

// RoundTrip implements http.RoundTripper: intercepted requests are answered by
// the controlling agent, everything else goes to the network untouched.
func (c *Container) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := c.Dispatch(req.Context(), req)
	if errors.Is(err, agent.ErrPassThrough) {
		return c.network.RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}
