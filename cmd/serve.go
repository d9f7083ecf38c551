/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/metrics"
	"github.com/ademuri/listening-identity/internal/report"
	"github.com/ademuri/listening-identity/internal/store"
)

type ServeConfig struct {
	Addr string
	Dir  string
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the metrics and a directory of charts over HTTP",
	Long: `GET /api/metrics returns the metrics as JSON and GET /api/report as an HTML
page. Both accept from and to query parameters in the same formats as the
metrics command. Everything else is served from --dir.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		config := ServeConfig{
			Addr: viper.GetString("addr"),
			Dir:  viper.GetString("dir"),
		}

		if err := serve(cmd.Context(), config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	var addr string
	serveCmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address to listen on")
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	var dir string
	serveCmd.Flags().StringVar(&dir, "dir", ".", "Directory of static files to serve")
	viper.BindPFlag("dir", serveCmd.Flags().Lookup("dir"))
}

func serve(ctx context.Context, config ServeConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	server := &http.Server{Addr: config.Addr, Handler: newRouter(st, config.Dir)}
	errs := make(chan error, 1)
	go func() {
		slog.Info("serving", "address", server.Addr, "dir", config.Dir)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type metricsServer struct {
	store *store.Store
}

func newRouter(st *store.Store, dir string) http.Handler {
	s := &metricsServer{store: st}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	r.Get("/api/metrics", s.getMetrics)
	r.Get("/api/report", s.getReport)
	r.Handle("/*", http.FileServer(http.Dir(dir)))
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *metricsServer) getMetrics(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "application/json", report.JSON)
}

func (s *metricsServer) getReport(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "text/html; charset=utf-8", report.HTML)
}

func (s *metricsServer) render(w http.ResponseWriter, r *http.Request, contentType string, write func(w io.Writer, snap metrics.Snapshot) error) {
	var args []string
	for _, name := range []string{"from", "to"} {
		if v := r.URL.Query().Get(name); v != "" {
			args = append(args, v)
		}
	}

	var start, end time.Time
	if len(args) > 0 {
		var err error
		start, end, err = parseDateRangeFromArgs(args)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap, err := computeSnapshot(r.Context(), s.store, start, end)
	if err != nil {
		slog.Error("computing metrics", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if err := write(w, snap); err != nil {
		slog.Error("rendering metrics", "error", err)
	}
}
