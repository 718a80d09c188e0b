// Command mock-server is a stand-in for the central weaving server: it
// accepts picture batches and surface movement reports and answers the
// status codes the pipeline expects. Useful for local runs and demos.
package main

import (
	"encoding/json"
	"flag"
	"net/http"

	"github.com/loomsight/weavesync/internal/monitoring"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "listen address")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := monitoring.NewLogger(*level)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		log.Debug().Msg("ping")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/pictures_batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Lights []struct {
				Light string `json:"light"`
			} `json:"lights"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed pictures batch")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Info().Int("lights", len(payload.Lights)).Msg("pictures batch received")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/surface_movement", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Velocity     float64 `json:"velocity"`
			Displacement float64 `json:"displacement"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed surface movement")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Info().
			Float64("velocity", payload.Velocity).
			Float64("displacement", payload.Displacement).
			Msg("surface movement received")
		w.WriteHeader(http.StatusCreated)
	})

	log.Info().Str("addr", *addr).Msg("mock server listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("mock server exited")
	}
}
