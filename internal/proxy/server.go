package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/agent"
	"github.com/iTrooz/offline-cache-proxy/internal/cache"
	"github.com/iTrooz/offline-cache-proxy/internal/config"
	"github.com/iTrooz/offline-cache-proxy/internal/worker"
)

// Server represents the offline caching proxy server
type Server struct {
	config    *config.Config
	proxy     *goproxy.ProxyHttpServer
	storage   cache.Storage
	agent     *agent.Agent
	container *worker.Container
	rules     []Rule
}

// New creates a new proxy server hosting the offline cache agent
func New(cfg *config.Config) (*Server, error) {
	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, fmt.Errorf("invalid agent origin: %w", err)
	}

	storage, err := newStorage(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = logrus.StandardLogger()
	proxy.Verbose = logrus.IsLevelEnabled(logrus.DebugLevel)

	ag, err := agent.New(agent.Config{
		StoreName:     cfg.StoreName(),
		Origin:        origin,
		Precache:      cfg.Agent.Precache,
		Fallback:      cfg.Agent.Fallback,
		MaxStoredBody: cfg.Agent.MaxStoredBody,
	}, storage, proxy.Tr, agent.WithLogger(logrus.WithField("component", "agent")))
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	s := &Server{
		config:    cfg,
		proxy:     proxy,
		storage:   storage,
		agent:     ag,
		container: worker.NewContainer(proxy.Tr, logrus.WithField("component", "worker")),
	}
	for _, rule := range cfg.Scope.Rules {
		s.rules = append(s.rules, &ConfigRule{ScopeRule: rule})
	}

	if cfg.Server.HTTPS.Enabled {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			_ = storage.Close()
			return nil, err
		}
	}
	proxy.OnRequest().DoFunc(s.handleRequest)
	proxy.NonproxyHandler = s.adminRouter()

	return s, nil
}

// GetProxy returns the underlying goproxy handler
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Agent returns the hosted agent
func (s *Server) Agent() *agent.Agent {
	return s.agent
}

// Install registers the agent: install, then activate.
// Only an install failure is fatal; the proxy keeps forwarding traffic otherwise.
func (s *Server) Install(ctx context.Context) error {
	reg, err := s.container.Register(ctx, s.agent)
	if err != nil {
		if reg != nil && reg.State() == worker.StateRedundant {
			return err
		}
		logrus.Errorf("Agent activation incomplete: %v", err)
	}
	return nil
}

// Start registers the agent and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := s.Install(ctx); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	logrus.Infof("Starting offline cache proxy on port %d", s.config.Server.Port)
	logrus.Infof("Store: %s (%s backend in %s)", s.config.StoreName(), s.config.Cache.Backend, s.config.Cache.Folder)
	logrus.Infof("Origin: %s", s.config.Agent.Origin)
	logrus.Infof("Scope mode: %s", s.config.Scope.Mode)

	if port := s.config.Server.HTTPS.TransparentPort; port != 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("failed to listen for transparent HTTPS: %w", err)
		}
		defer func() { _ = ln.Close() }()
		logrus.Infof("Transparent HTTPS on port %d", port)
		go s.serveTransparentHTTPS(ln)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: s.proxy,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logrus.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close waits for pending store writes and closes the storage
func (s *Server) Close() error {
	s.agent.Wait()
	return s.storage.Close()
}
