package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for lead review and outcome recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/leads", func(w http.ResponseWriter, req *http.Request) {
			filter := store.LeadFilter{
				Status:   model.LeadStatus(req.URL.Query().Get("status")),
				QueryID:  req.URL.Query().Get("query_id"),
				MinScore: queryInt(req, "min_score", 0),
				Limit:    queryInt(req, "limit", 100),
				Offset:   queryInt(req, "offset", 0),
			}
			leads, err := env.Store.ListLeads(req.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			filter := store.RunFilter{
				QueryID: req.URL.Query().Get("query_id"),
				Status:  model.RunStatus(req.URL.Query().Get("status")),
				Limit:   queryInt(req, "limit", 50),
			}
			runs, err := env.Store.ListRuns(req.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
		})

		r.Get("/api/queries", func(w http.ResponseWriter, req *http.Request) {
			enabledOnly := req.URL.Query().Get("enabled") == "true"
			queries, err := env.Store.ListQueries(req.Context(), enabledOnly)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"queries": queries, "count": len(queries)})
		})

		r.Post("/api/outcome", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				AttemptID string `json:"attempt_id"`
				LeadID    string `json:"lead_id"`
				Outcome   string `json:"outcome"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}

			attempt, err := env.Pipeline.RecordOutcome(req.Context(), body.AttemptID, body.LeadID, model.Outcome(body.Outcome))
			switch {
			case err == nil:
				writeJSON(w, http.StatusOK, map[string]any{"attempt": attempt})
			case eris.Is(err, store.ErrOutcomeRecorded):
				writeError(w, http.StatusConflict, err)
			case eris.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			default:
				writeError(w, http.StatusBadRequest, err)
			}
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(req *http.Request, key string, def int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
