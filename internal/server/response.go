package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubweb/internal/epub"
)

const contentTypeJSON = "application/json"

type errorMsg struct {
	ErrorMessage string `json:"error_message"`
}

// statusFor maps document errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, epub.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, epub.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, epub.ErrNoBodyContent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeError logs err with request fields and sends it as JSON. Server
// errors are logged at error level, client errors at warn.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.Error(err),
		zap.String("client_ip", clientIP(r)),
		zap.String("request.method", r.Method),
		zap.String("request.uri", r.RequestURI),
		zap.Int("response.status_code", status),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(http.StatusText(status), fields...)
	} else {
		s.logger.Warn(http.StatusText(status), fields...)
	}

	data, _ := json.Marshal(errorMsg{ErrorMessage: err.Error()})
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
