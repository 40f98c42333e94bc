package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "inc-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"inc-1"}}`, rec.Body.String())
}

func TestValidationError_FieldDetails(t *testing.T) {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role,omitempty" validate:"omitempty,oneof=operator admin"`
	}

	err := NewValidator().Struct(request{Email: "nope", Password: "short", Role: "root"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation error", body.Error.Message)

	var details []FieldError
	require.NoError(t, json.Unmarshal(body.Error.Details, &details))
	assert.ElementsMatch(t, []FieldError{
		{Field: "email", Message: "must be a valid email address"},
		{Field: "password", Message: "must be at least 8 characters"},
		{Field: "role", Message: "must be one of: operator admin"},
	}, details)
}

func TestValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, errors.New("bad input"))

	body := decodeError(t, rec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `"bad input"`, string(body.Error.Details))
}

func TestValidationFailed(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationFailed(rec, "description is too long", []FieldError{{Field: "description", Message: "description is too long"}})

	body := decodeError(t, rec)
	assert.Equal(t, "description is too long", body.Error.Message)
	assert.JSONEq(t, `[{"field":"description","message":"description is too long"}]`, string(body.Error.Details))
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
