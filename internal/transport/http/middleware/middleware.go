package middleware

import (
	"net/http"
)

// Middleware — обёртка над http.Handler в стиле net/http.
type Middleware func(http.Handler) http.Handler

// Chain собирает цепочку: первый мидлвар в списке оказывается внешним
// и отрабатывает на запросе раньше остальных.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusWriter запоминает статус и объём ответа для access-лога.
type statusWriter struct {
	http.ResponseWriter
	status int
	count  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Write фиксирует неявный 200, если хендлер не вызвал WriteHeader.
func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	count, err := w.ResponseWriter.Write(p)
	w.count += count
	return count, err
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w}
}
