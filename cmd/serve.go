package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/audit"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for visibility audits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runAudit := func(ctx context.Context, req audit.Request) (*audit.Result, error) {
			runner, cleanup, err := buildRunner(ctx, st, req.Brand)
			if err != nil {
				return nil, err
			}
			defer cleanup()
			return runner.Run(ctx, req)
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}

		srv := &http.Server{
			Addr:    addr,
			Handler: newRouter(st, runAudit),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// auditFunc runs one audit synchronously.
type auditFunc func(ctx context.Context, req audit.Request) (*audit.Result, error)

// newRouter builds the API routes.
func newRouter(st store.Store, runAudit auditFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/audits", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Brand            model.BrandIdentity `json:"brand"`
			Queries          []model.Query       `json:"queries,omitempty"`
			Budget           int                 `json:"budget,omitempty"`
			Intents          []model.Intent      `json:"intents,omitempty"`
			IncludeResponses bool                `json:"include_responses,omitempty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := body.Brand.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := runAudit(req.Context(), audit.Request{
			Brand:            body.Brand,
			Queries:          body.Queries,
			Budget:           body.Budget,
			Intents:          body.Intents,
			IncludeResponses: body.IncludeResponses,
		})
		if err != nil {
			zap.L().Error("api: audit failed",
				zap.String("brand", body.Brand.Name),
				zap.Error(err),
			)
			status := http.StatusInternalServerError
			if isValidationError(err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status: model.RunStatus(q.Get("status")),
			Brand:  q.Get("brand"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	r.Get("/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

// isValidationError reports whether the audit failed on bad input rather
// than a downstream fault.
func isValidationError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"allocate:",
		"brand:",
		"no queries supplied",
		"out of range",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
