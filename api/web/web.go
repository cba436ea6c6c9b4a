package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"
)

const (
	maxBodyBytes      = 1 << 20
	maxMultipartBytes = 10 << 20
)

type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

type Middleware func(Handler) Handler

func WrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if h := mw[i]; h != nil {
			handler = h(handler)
		}
	}
	return handler
}

func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot marshal response data: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(jsonData); err != nil {
		return fmt.Errorf("cannot write response data to response writer: %w", err)
	}
	return nil
}

func Decode(w http.ResponseWriter, r *http.Request, val any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return err
	}
	return nil
}

// ReadRaw returns the unparsed body, as required for signature checks.
func ReadRaw(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return io.ReadAll(r.Body)
}

// DecodeMultipart parses a multipart form whose field carries a JSON document
// and returns the uploaded file stored under fileField.
func DecodeMultipart(w http.ResponseWriter, r *http.Request, field string, val any, fileField string) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		return nil, nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	raw := r.FormValue(field)
	if raw == "" {
		return nil, nil, fmt.Errorf("missing form field %q", field)
	}
	if err := json.Unmarshal([]byte(raw), val); err != nil {
		return nil, nil, fmt.Errorf("decoding form field %q: %w", field, err)
	}

	f, fh, err := r.FormFile(fileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, ErrMissingFile
		}
		return nil, nil, fmt.Errorf("reading form file %q: %w", fileField, err)
	}
	return f, fh, nil
}

var ErrMissingFile = errors.New("file not attached")

func Param(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}
