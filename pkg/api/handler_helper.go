package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dd0wney/echoaid/pkg/validation"
)

// requestDecoder decodes and validates request bodies.
// It provides a fluent interface for common request handling patterns.
type requestDecoder struct {
	r          *http.Request
	w          http.ResponseWriter
	server     *Server
	err        error
	statusCode int
}

// NewRequestDecoder creates a new request decoder for the given request.
func (s *Server) NewRequestDecoder(w http.ResponseWriter, r *http.Request) *requestDecoder {
	return &requestDecoder{
		r:      r,
		w:      w,
		server: s,
	}
}

// DecodeJSON decodes the request body into v.
// Returns the decoder for chaining. Check HasError() after calling.
func (rd *requestDecoder) DecodeJSON(v any) *requestDecoder {
	return rd.decode(v, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty.
func (rd *requestDecoder) DecodeOptionalJSON(v any) *requestDecoder {
	return rd.decode(v, true)
}

func (rd *requestDecoder) decode(v any, optional bool) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	err := json.NewDecoder(rd.r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && optional:
	case errors.As(err, &tooLarge):
		rd.err = fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		rd.statusCode = http.StatusRequestEntityTooLarge
	default:
		rd.err = fmt.Errorf("invalid request body: %w", err)
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// Validate runs check, typically one of the validation package's request
// validators. Returns the decoder for chaining.
func (rd *requestDecoder) Validate(check func() error) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	if err := check(); err != nil {
		rd.err = err
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// ValidateStruct validates a tagged request struct.
func (rd *requestDecoder) ValidateStruct(req any) *requestDecoder {
	return rd.Validate(func() error { return validation.Struct(req) })
}

// HasError returns true if any error occurred during decoding/validation.
func (rd *requestDecoder) HasError() bool {
	return rd.err != nil
}

// Error returns the error if any occurred.
func (rd *requestDecoder) Error() error {
	return rd.err
}

// RespondError sends the error response and returns true if there was an error.
// Returns false if no error occurred.
func (rd *requestDecoder) RespondError() bool {
	if rd.err == nil {
		return false
	}
	rd.server.respondError(rd.w, rd.statusCode, rd.err.Error())
	return true
}

// queryInt reads a non-negative integer query parameter. Absent means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
