package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fixdesk/hub/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody returns a middleware that limits request body size to maxBytes.
// When the handler reads past the limit the response is 413 Request Entity Too Large, even if the
// handler already answered 400 for the truncated JSON. Requests without a body stream straight through.
// Use 0 or negative to disable (no limit).
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)

				return
			}

			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			buf := &responseBuffer{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if !body.exceeded {
				buf.flush()

				return
			}

			if recorder != nil {
				recorder.RecordRequestBodyTooLarge(r.Context())
			}

			response.RespondError(w, http.StatusRequestEntityTooLarge,
				"Request Entity Too Large", "request body exceeds maximum allowed size")
		})
	}
}

// limitedBody notes whether the wrapped MaxBytesReader hit its limit. Errors pass through
// unwrapped so readers can still compare against io.EOF.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}

	return n, err //nolint:wrapcheck // io.Reader contract
}

// responseBuffer holds the handler's response until the body limit outcome is known.
type responseBuffer struct {
	http.ResponseWriter

	status int
	buf    bytes.Buffer
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	return b.buf.Write(p) //nolint:wrapcheck // bytes.Buffer only fails on OOM
}

func (b *responseBuffer) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
