package agentpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/agentpool/internal/config"
	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/internal/tracing"
	"github.com/zjrosen/agentpool/pool"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool headlessly behind an HTTP status API",
	Long: `Start the worker pool and expose its status over HTTP.

GET  /status   returns the pool's current Status as JSON
GET  /snapshot returns the pool's full Snapshot as JSON
GET  /health   checks a worker out and back in, confirming the pool can serve
POST /work     dispatches the request body to a worker, returns its reply

Example:
  agentpool serve                  # listen on the configured address
  agentpool serve --addr :8080     # override the listen address`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cleanup, err := initDebugLogging("agentpool-serve")
	if err != nil {
		return err
	}
	defer cleanup()

	p, mp, tp, err := buildPool()
	if err != nil {
		return err
	}

	config.Watch(v, func(c config.Config) {
		p.Reconfigure(c.MaxOverflow, c.PoolStrategy())
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", statusHandler(p))
	mux.HandleFunc("/snapshot", snapshotHandler(p))
	mux.HandleFunc("/health", healthHandler(p, tp))
	mux.HandleFunc("/work", workHandler(p, tp))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	fmt.Printf("agentpool serving on %s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatCLI, "error stopping HTTP server", "error", err)
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatCLI, "error stopping metrics", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatCLI, "error stopping tracing", "error", err)
	}
	p.Stop()

	fmt.Println("agentpool stopped")
	return nil
}

func statusHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Status())
	}
}

func snapshotHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Snapshot())
	}
}

// healthHandler checks a worker out and immediately back in, wrapped in a
// trace span, to confirm the pool can actually service a request rather than
// just reporting its last-known counts.
func healthHandler(p *pool.Pool, tp *tracing.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tp.StartCheckout(r.Context())
		defer span.End()

		h, err := p.Checkout(ctx, false)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			span.RecordError(err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		p.Checkin(h)

		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// workHandler dispatches the request body as a Message to a worker and
// returns its Reply as JSON.
func workHandler(p *pool.Pool, tp *tracing.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, span := tp.StartWork(r.Context())
		defer span.End()

		reply, err := p.Work(ctx, string(body))
		if err != nil {
			span.RecordError(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"reply": reply})
	}
}
