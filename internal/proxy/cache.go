package proxy

import (
	"errors"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/agent"
)

// handleRequest hands in-scope requests to the worker container.
// Requests nobody intercepts continue to the upstream server through goproxy.
func (s *Server) handleRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	requ.URL = targetURL(requ)

	if !s.inScope(requ) {
		logrus.Debugf("Out of scope: %s %s", requ.Method, requ.URL)
		return requ, nil
	}

	goproxy.RemoveProxyHeaders(ctx, requ)

	res, err := s.container.Dispatch(requ.Context(), requ)
	if errors.Is(err, agent.ErrPassThrough) {
		return requ, nil
	}
	if err != nil {
		logrus.Errorf("Failed to answer %s %s: %v", requ.Method, requ.URL, err)
		return requ, goproxy.NewResponse(requ, goproxy.ContentTypeText, http.StatusBadGateway, err.Error())
	}

	resp := res.Response
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set("X-Cache", cacheStatus(res.Source))
	resp.Request = requ

	logrus.Infof("%s %s -> %d (%s)", requ.Method, requ.URL, resp.StatusCode, res.Source)
	return requ, resp
}

// inScope determines if a request is handed to the agent based on rules
func (s *Server) inScope(requ *http.Request) bool {
	matched := false
	for _, rule := range s.rules {
		if rule.Match(requ) {
			matched = true
			break
		}
	}

	if s.config.Scope.Mode == "whitelist" {
		return matched
	} else {
		return !matched
	}
}

func cacheStatus(source agent.Source) string {
	switch source {
	case agent.SourceCache:
		return "HIT"
	case agent.SourceFallback:
		return "OFFLINE"
	default:
		return "MISS"
	}
}
