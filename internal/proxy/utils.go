package proxy

import (
	"net/http"
	"net/url"
)

// targetURL returns the absolute URL a request is aimed at. Requests that
// arrive in origin form (MITM'd tunnels, transparent listeners) carry only a
// path, so the host comes from the Host header.
func targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}

	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	u.Host = r.Host
	return &u
}

func getTargetURL(r *http.Request) string {
	return targetURL(r).String()
}
