package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/model"
)

var servePort int

// taskRunner executes one batch run for a task.
type taskRunner func(ctx context.Context, hint []string) (model.TaskRun, error)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task trigger server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		scoreOrch, err := env.scoreOrchestrator()
		if err != nil {
			return err
		}

		runners := map[string]taskRunner{
			// Each scrape run gets a fresh orchestrator so domain health
			// starts clean per batch.
			"scrape": func(ctx context.Context, hint []string) (model.TaskRun, error) {
				return env.scrapeOrchestrator().Run(ctx, hint)
			},
			"score": scoreOrch.Run,
		}

		router := newRouter(ctx, env.store.Ping, runners)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the trigger API. Task runs execute asynchronously on
// baseCtx; each task admits one run at a time.
func newRouter(baseCtx context.Context, healthCheck func(context.Context) error, runners map[string]taskRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := healthCheck(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for task, run := range runners {
		r.Post("/tasks/"+task, triggerHandler(baseCtx, task, run))
	}

	return r
}

// triggerHandler accepts a trigger request, kicks off the run in the
// background, and replies immediately. Overlapping triggers for the same
// task are rejected.
func triggerHandler(baseCtx context.Context, task string, run taskRunner) http.HandlerFunc {
	var lock sync.Mutex

	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			LeadIDs []string `json:"lead_ids"`
		}
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		if !lock.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": task + " run already in progress"})
			return
		}

		go func() {
			defer lock.Unlock()

			result, err := run(baseCtx, body.LeadIDs)
			if err != nil {
				zap.L().Error("triggered run failed",
					zap.String("task", task),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("triggered run finished",
				zap.String("task", task),
				zap.String("run_id", result.RunID),
				zap.String("status", string(result.Status)),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", result.Failed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "task": task})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
