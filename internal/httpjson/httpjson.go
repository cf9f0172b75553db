package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBody bounds request bodies read by Read.
const MaxBody = 1 << 20

var ErrTrailingData = errors.New("unexpected data after JSON value")

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Read decodes exactly one JSON value into dst, rejecting unknown fields.
func Read(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]any{"message": msg})
}
