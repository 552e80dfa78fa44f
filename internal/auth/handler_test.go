package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/jwt"
)

type stubAccounts struct {
	registered *hub.RegisterInput
}

func (s *stubAccounts) Register(ctx context.Context, in hub.RegisterInput) (*hub.Hub, error) {
	s.registered = &in
	return &hub.Hub{ID: uuid.New(), Username: in.Username, Name: in.Name}, nil
}

func (s *stubAccounts) Authenticate(ctx context.Context, username, password string) (*hub.Hub, error) {
	if password != "correct-horse" {
		return nil, domainerrors.InvalidCredentials()
	}
	return &hub.Hub{ID: uuid.New(), Username: username}, nil
}

func newRouter(accounts HubAccounts, tokens *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewAuthService(accounts, tokens))
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return r
}

func TestRegister_IssuesHubToken(t *testing.T) {
	tokens := jwt.NewService("secret", time.Hour)
	accounts := &stubAccounts{}
	r := newRouter(accounts, tokens)

	body := `{"username":"gudang-bdg","password":"correct-horse","name":"Gudang Bandung","lat":-6.9,"lng":107.6}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var session Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	claims, err := tokens.ValidateToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleHub, claims.Role)
	assert.Equal(t, session.Hub.ID.String(), claims.Sub)

	require.NotNil(t, accounts.registered.Location)
	assert.Equal(t, 107.6, accounts.registered.Location.Lng)
}

func TestRegister_HalfCoordinatesRejected(t *testing.T) {
	r := newRouter(&stubAccounts{}, jwt.NewService("secret", time.Hour))

	body := `{"username":"gudang","password":"correct-horse","name":"Gudang","lat":-6.9}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	r := newRouter(&stubAccounts{}, jwt.NewService("secret", time.Hour))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"gudang","password":"correct-horse"}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"gudang","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
