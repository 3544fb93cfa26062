package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldnotes.ai/internal/observation"
	"fieldnotes.ai/internal/transport/ws"
)

type adminObservation struct {
	observation.Record
	State    string               `json:"state"`
	Rendered bool                 `json:"rendered"`
	Display  observation.Location `json:"display"`
}

func newMux(coord *observation.Coordinator, host *ws.Host, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/ws", host.Handler())

	if envBool("OBS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/observations", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			var out []adminObservation
			if err := coord.Exec(ctx, func() {
				for _, o := range coord.List() {
					out = append(out, adminObservation{
						Record:   o.Record(),
						State:    o.State().String(),
						Rendered: o.Rendered(),
						Display:  o.Display(),
					})
				}
			}); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Connected    bool               `json:"host_connected"`
				Markers      int                `json:"markers"`
				Observations []adminObservation `json:"observations"`
			}{
				Connected:    host.Connected(),
				Markers:      host.MarkerCount(),
				Observations: out,
			}
			if err := json.NewEncoder(rw).Encode(resp); err != nil {
				logger.Printf("admin observations: %v", err)
			}
		})
		mux.HandleFunc("/admin/v1/sweep", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if r.Method != http.MethodPost {
				http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var removed int
			if err := coord.Exec(r.Context(), func() { removed = coord.Sweep() }); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]int{"removed": removed})
		})
	}
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
