package httpjson

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Content string `json:"content"`
}

func read(s string) (body, error) {
	var b body
	err := Read(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(s)), &b)
	return b, err
}

func TestRead(t *testing.T) {
	b, err := read(`{"content":"hi"}` + "\n")
	require.NoError(t, err)
	assert.Equal(t, "hi", b.Content)

	_, err = read(`{"content":"hi"} {"content":"again"}`)
	assert.ErrorIs(t, err, ErrTrailingData)

	_, err = read(`{"content":"hi","extra":1}`)
	assert.Error(t, err, "unknown fields are rejected")

	_, err = read(`{"content":`)
	assert.Error(t, err)
}

func TestWriteAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "not found")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"not found"}`, rec.Body.String())
}
