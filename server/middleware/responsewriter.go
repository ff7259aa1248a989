package middleware

import "net/http"

// accessWriter records what the handler sent for the access log.
type accessWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *accessWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *accessWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and deadlines on the
// underlying writer.
func (w *accessWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// code is the status sent, or 200 when the handler wrote nothing.
func (w *accessWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
