package proxy

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// certStore implements goproxy.CertStorage. Leaf certificates are generated
// once per hostname, even when several CONNECTs for it arrive together.
type certStore struct {
	mu     sync.RWMutex
	certs  map[string]*tls.Certificate
	flight singleflight.Group
}

func newCertStore() *certStore {
	return &certStore{certs: make(map[string]*tls.Certificate)}
}

func (s *certStore) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	s.mu.RLock()
	cert, ok := s.certs[hostname]
	s.mu.RUnlock()
	if ok {
		return cert, nil
	}

	v, err, _ := s.flight.Do(hostname, func() (any, error) {
		cert, err := gen()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.certs[hostname] = cert
		s.mu.Unlock()
		logrus.WithField("host", hostname).Debug("Generated leaf certificate")
		return cert, nil
	})
	if err != nil {
		logrus.WithField("host", hostname).Errorf("Failed to generate certificate: %v", err)
		return nil, fmt.Errorf("failed to generate certificate for hostname '%s': %w", hostname, err)
	}
	return v.(*tls.Certificate), nil
}

// Len returns the number of cached leaf certificates
func (s *certStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs)
}
