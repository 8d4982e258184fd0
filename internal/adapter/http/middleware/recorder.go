package middleware

import (
	"bytes"
	"net/http"
)

// statusRecorder captures the status code and size of the response written
// by the next handler.
type statusRecorder struct {
	http.ResponseWriter

	statusCode int
	bytes      int
	body       *bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

// captureBody makes the recorder keep a copy of the response body.
func (r *statusRecorder) captureBody() *statusRecorder {
	r.body = &bytes.Buffer{}
	return r
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.body != nil {
		r.body.Write(b)
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
