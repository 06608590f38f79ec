package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/otp-identity/internal/config"
	"github.com/otp-identity/internal/domain"
	jwtinfra "github.com/otp-identity/internal/infrastructure/jwt"
	"github.com/otp-identity/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockUserSvc struct{ mock.Mock }

func (m *mockUserSvc) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserSvc) List(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if us, _ := args.Get(0).([]domain.User); us != nil {
		return us, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserSvc) UpdateName(ctx context.Context, userID, name string) (*domain.User, string, error) {
	args := m.Called(ctx, userID, name)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.String(1), args.Error(2)
	}
	return nil, "", args.Error(2)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for u.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target string, u *domain.User, body []byte) *http.Request {
	t.Helper()
	token, err := p.Sign(u)
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// withClaims skips the Auth middleware and injects claims for userID directly.
func withClaims(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{UserID: userID}))
}

// withChiParam injects a chi URL param into the request context.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withChiID(r *http.Request, id string) *http.Request { return withChiParam(r, "id", id) }

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// --- Me ---

func TestMe_ThroughAuthMiddleware(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockUserSvc{}
	u := &domain.User{UserID: "u1", Name: "alice", Email: "alice@x.com"}
	svc.On("Get", mock.Anything, "u1").Return(u, nil)
	h := NewUserHandler(svc)

	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Me), rr, bearerReq(t, p, http.MethodGet, "/api/v1/me", u, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "alice@x.com", resp.Email)
	svc.AssertExpectations(t)
}

func TestMe_NoToken(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockUserSvc{}
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(NewUserHandler(svc).Me), rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestMe_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewUserHandler(&mockUserSvc{}).Me(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"message":"Please login","error":"unauthorized"}`, rr.Body.String())
}

func TestMe_UserGone(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("Get", mock.Anything, "u1").Return(nil, fmt.Errorf("user not found: %w", domain.ErrNotFound))

	rr := httptest.NewRecorder()
	NewUserHandler(svc).Me(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), "u1"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- List ---

func TestList_ReturnsArray(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("List", mock.Anything).Return([]domain.User{{UserID: "u1"}, {UserID: "u2"}}, nil)

	rr := httptest.NewRecorder()
	NewUserHandler(svc).List(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/user/all", nil), "u1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp []domain.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp, 2)
}

func TestList_StoreFailure_HidesDetails(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("List", mock.Anything).Return(nil, errors.New("dynamodb: ProvisionedThroughputExceeded"))

	rr := httptest.NewRecorder()
	NewUserHandler(svc).List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/user/all", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "dynamodb")
}

// --- Get ---

func TestGet_Found(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("Get", mock.Anything, "u2").Return(&domain.User{UserID: "u2", Name: "bob"}, nil)

	rr := httptest.NewRecorder()
	NewUserHandler(svc).Get(rr, withChiID(httptest.NewRequest(http.MethodGet, "/api/v1/user/u2", nil), "u2"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "bob", resp.Name)
}

func TestGet_Unknown_ReturnsNull(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("Get", mock.Anything, "nope").Return(nil, fmt.Errorf("user not found: %w", domain.ErrNotFound))

	rr := httptest.NewRecorder()
	NewUserHandler(svc).Get(rr, withChiID(httptest.NewRequest(http.MethodGet, "/api/v1/user/nope", nil), "nope"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))
}

// --- UpdateName ---

func TestUpdateName_HappyPath(t *testing.T) {
	svc := &mockUserSvc{}
	updated := &domain.User{UserID: "u1", Name: "Alice B"}
	svc.On("UpdateName", mock.Anything, "u1", "Alice B").Return(updated, "new-token", nil)
	body, _ := json.Marshal(domain.UpdateNameRequest{Name: "Alice B"})

	rr := httptest.NewRecorder()
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/v1/update/user", bytes.NewReader(body)), "u1")
	NewUserHandler(svc).UpdateName(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp AuthEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "User Updated", resp.Message)
	assert.Equal(t, "Alice B", resp.User.Name)
	assert.Equal(t, "new-token", resp.Token)
	svc.AssertExpectations(t)
}

func TestUpdateName_UnknownUser(t *testing.T) {
	svc := &mockUserSvc{}
	svc.On("UpdateName", mock.Anything, "ghost", "Bob").Return(nil, "", fmt.Errorf("user not found: %w", domain.ErrNotFound))
	body, _ := json.Marshal(domain.UpdateNameRequest{Name: "Bob"})

	rr := httptest.NewRecorder()
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/v1/update/user", bytes.NewReader(body)), "ghost")
	NewUserHandler(svc).UpdateName(rr, r)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, rr.Body.String(), "token")
}

func TestUpdateName_InvalidBody(t *testing.T) {
	svc := &mockUserSvc{}
	rr := httptest.NewRecorder()
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/v1/update/user", bytes.NewBufferString("not-json")), "u1")
	NewUserHandler(svc).UpdateName(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateName_MissingName(t *testing.T) {
	svc := &mockUserSvc{}
	rr := httptest.NewRecorder()
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/v1/update/user", bytes.NewBufferString(`{}`)), "u1")
	NewUserHandler(svc).UpdateName(rr, r)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "UpdateName", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateName_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewUserHandler(&mockUserSvc{}).UpdateName(rr, httptest.NewRequest(http.MethodPost, "/api/v1/update/user", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"message":"Please login","error":"unauthorized"}`, rr.Body.String())
}
