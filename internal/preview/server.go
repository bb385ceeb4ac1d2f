package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuanying/epubbuild/internal/epub"
)

// DefaultNavHref is the navigation document opened by default.
const DefaultNavHref = "Text/nav.xhtml"

// Options configures the preview handler.
type Options struct {
	Root    string // source directory to serve
	NavHref string // nav document relative to Root
	Nav     epub.NavOptions
	Logger  *slog.Logger
}

// NewRouter serves Root as static files. The navigation document is served
// with its toc placeholder resolved, the way the build writes it.
func NewRouter(opts Options) http.Handler {
	if opts.NavHref == "" {
		opts.NavHref = DefaultNavHref
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(requestLogger(opts.Logger))

	navURL := "/" + path.Clean(opts.NavHref)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, navURL, http.StatusFound)
	})
	r.Get(navURL, navHandler(opts))
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			opts.Logger.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.Handle("/*", http.FileServer(http.Dir(opts.Root)))
	return r
}

func navHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := os.ReadFile(filepath.Join(opts.Root, filepath.FromSlash(opts.NavHref)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			opts.Logger.Error("failed to read nav document", "err", err)
			http.Error(w, "failed to read nav document", http.StatusInternalServerError)
			return
		}
		res, err := epub.ResolveNavTOC(raw, opts.Nav)
		if err != nil {
			opts.Logger.Error("failed to resolve toc", "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xhtml+xml; charset=utf-8")
		_, _ = w.Write(res.Document)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// ListenAndServe serves h on addr until ctx is canceled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down preview server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "err", err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
