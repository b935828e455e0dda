package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/yuanying/epubweb/internal/converter"
	"github.com/yuanying/epubweb/internal/epub"
)

const shutdownTimeout = 5 * time.Second

// Options configures the HTTP handler.
type Options struct {
	// Images optimizes raster images before they are served. Nil serves them as stored.
	Images *converter.ImageOptimizer
	Logger *zap.Logger
}

// Server exposes one loaded book over HTTP.
type Server struct {
	doc    *epub.Document
	images *converter.ImageOptimizer
	logger *zap.Logger
}

// bookInfo is the body of GET /api/book.
type bookInfo struct {
	Metadata epub.MetadataMap     `json:"metadata"`
	Spine    []string             `json:"spine"`
	Manifest []epub.ManifestEntry `json:"manifest"`
	Cover    *epub.CoverInfo      `json:"cover,omitempty"`
}

// NewHandler returns the router for doc. Chapter links and image sources
// are rewritten with the base URLs doc was opened with, so those should
// point at /files on this server.
func NewHandler(doc *epub.Document, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{doc: doc, images: opts.Images, logger: logger}

	router := mux.NewRouter()
	router.Use(s.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/book", s.handleBook).Methods(http.MethodGet).Name("book")
	api.HandleFunc("/toc", s.handleTOC).Methods(http.MethodGet).Name("toc")
	api.HandleFunc("/chapters/{id}", s.handleChapter).Methods(http.MethodGet).Name("chapter")
	api.HandleFunc("/chapters/{id}/raw", s.handleRawChapter).Methods(http.MethodGet).Name("chapter-raw")
	api.HandleFunc("/chapters/{id}/text", s.handleChapterText).Methods(http.MethodGet).Name("chapter-text")
	api.HandleFunc("/images/{id}", s.handleImage).Methods(http.MethodGet).Name("image")
	api.HandleFunc("/cover", s.handleCover).Methods(http.MethodGet).Name("cover")

	router.HandleFunc("/files/{href:.*}", s.handleFile).Methods(http.MethodGet).Name("file")
	router.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Name("healthcheck")

	return router
}

// ListenAndServe serves handler on addr until ctx is canceled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	info := bookInfo{
		Metadata: s.doc.Metadata(),
		Spine:    s.doc.Spine(),
		Manifest: s.doc.Manifest(),
	}
	if cover, ok := s.doc.Cover(); ok {
		info.Cover = cover
	}
	s.writeJSON(w, r, http.StatusOK, info)
}

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.doc.TOC())
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	body, err := s.doc.Chapter(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) handleRawChapter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := s.doc.RawChapter(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, _ := s.doc.ManifestItem(id)
	s.writeBytes(w, entry.MediaType, raw)
}

func (s *Server) handleChapterText(w http.ResponseWriter, r *http.Request) {
	text, err := s.doc.ChapterText(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, "text/plain; charset=utf-8", []byte(text))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := s.doc.Image(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, _ := s.doc.ManifestItem(id)
	s.writeBytes(w, entry.MediaType, s.optimize(entry, data))
}

// handleCover serves the cover image, or a JPEG thumbnail when ?width= is given.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	cover, ok := s.doc.Cover()
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: no cover image", epub.ErrNotFound))
		return
	}
	data, err := s.doc.Image(cover.ManifestID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	widthParam := r.URL.Query().Get("width")
	if widthParam == "" {
		s.writeBytes(w, cover.MediaType, data)
		return
	}
	width, err := strconv.Atoi(widthParam)
	if err != nil || width <= 0 {
		s.writeJSON(w, r, http.StatusBadRequest, errorMsg{ErrorMessage: "width must be a positive integer"})
		return
	}

	images := s.images
	if images == nil {
		images = converter.NewImageOptimizer(converter.ImageOptions{})
	}
	thumb, err := images.Thumbnail(data, width)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, "image/jpeg", thumb)
}

// handleFile serves any manifest item by its archive path. Content
// documents come back whole with references rewritten.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	href := mux.Vars(r)["href"]
	entry, ok := s.doc.ManifestItemByHref(href)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", epub.ErrNotFound, href))
		return
	}
	data, err := s.doc.RewrittenFile(entry.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, entry.MediaType, s.optimize(entry, data))
}

func (s *Server) optimize(entry epub.ManifestEntry, data []byte) []byte {
	if s.images == nil || entry.MediaType == "image/svg+xml" {
		return data
	}
	out, err := s.images.Optimize(entry.Href, entry.MediaType, data)
	if err != nil {
		s.logger.Warn("image optimization failed", zap.String("href", entry.Href), zap.Error(err))
		return data
	}
	return out.Data
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := ""
		if current := mux.CurrentRoute(r); current != nil {
			route = current.GetName()
		}
		s.logger.Debug("request",
			zap.String("route", route),
			zap.String("request.method", r.Method),
			zap.String("request.uri", r.RequestURI),
			zap.Int("response.status_code", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
