package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/metrics"
)

// adminRouter serves requests addressed to the proxy itself
func (s *Server) adminRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stores", s.handleStores).Methods(http.MethodGet)
	r.HandleFunc("/stores/{name}", s.handleStore).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write admin response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "unregistered"
	if reg := s.container.Active(); reg != nil {
		state = reg.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  s.agent.StoreName(),
		"worker": state,
	})
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	names, err := s.storage.Names()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": s.agent.StoreName(),
		"stores":  names,
	})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	found, err := s.storage.Has(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
		return
	}

	store, err := s.storage.Open(name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	keys, err := store.Keys()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"entries": keys,
	})
}
