package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/models"
	"easyform/internal/services"
)

type userFixture struct {
	router *mux.Router
}

func newUserFixture(instructionsMax int) *userFixture {
	handler := NewUserHandler(services.NewUserService(newMemUserRepo(), instructionsMax))

	router := mux.NewRouter()
	router.HandleFunc("/user/instructions", handler.GetInstructions).Methods(http.MethodGet)
	router.HandleFunc("/user/instructions", handler.UpdateInstructions).Methods(http.MethodPut)
	router.HandleFunc("/user/tokens", handler.CreateToken).Methods(http.MethodPost)
	router.HandleFunc("/user/tokens", handler.ListTokens).Methods(http.MethodGet)
	router.HandleFunc("/user/tokens/{token}", handler.DeleteToken).Methods(http.MethodDelete)
	return &userFixture{router: router}
}

func (f *userFixture) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, userID))

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestInstructions_RoundTrip(t *testing.T) {
	fixture := newUserFixture(2000)

	// Unknown users read empty instructions
	recorder := fixture.do(t, http.MethodGet, "/user/instructions", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var resp InstructionsResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "", resp.PersonalInstructions)

	recorder = fixture.do(t, http.MethodPut, "/user/instructions", "user-1", InstructionsResponse{
		PersonalInstructions: "  My name is Ada.\r\nI live in London. ",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/user/instructions", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	// Stored sanitized: trimmed, line endings normalized
	assert.Equal(t, "My name is Ada.\nI live in London.", resp.PersonalInstructions)
}

func TestInstructions_LengthLimit(t *testing.T) {
	fixture := newUserFixture(50)

	recorder := fixture.do(t, http.MethodPut, "/user/instructions", "user-1", InstructionsResponse{
		PersonalInstructions: strings.Repeat("x", 51),
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "exceed")
}

func TestTokens_Lifecycle(t *testing.T) {
	fixture := newUserFixture(2000)

	recorder := fixture.do(t, http.MethodPost, "/user/tokens", "user-1", CreateTokenRequest{Name: "extension"})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var token models.APITokenDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &token))
	assert.True(t, strings.HasPrefix(token.Token, models.TokenPrefix))
	assert.Equal(t, "extension", token.Name)

	recorder = fixture.do(t, http.MethodGet, "/user/tokens", "user-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var list TokenListResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	// Another user cannot revoke it
	recorder = fixture.do(t, http.MethodDelete, "/user/tokens/"+token.Token, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/user/tokens/"+token.Token, "user-1", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/user/tokens", "user-1", nil)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
}
