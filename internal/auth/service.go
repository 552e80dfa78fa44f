package auth

import (
	"context"

	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/jwt"
)

const RoleHub = "hub"

type HubAccounts interface {
	Register(ctx context.Context, in hub.RegisterInput) (*hub.Hub, error)
	Authenticate(ctx context.Context, username, password string) (*hub.Hub, error)
}

type Session struct {
	Token string   `json:"token"`
	Hub   *hub.Hub `json:"hub"`
}

type Service interface {
	Register(ctx context.Context, in hub.RegisterInput) (*Session, error)
	Login(ctx context.Context, username, password string) (*Session, error)
}

type authService struct {
	hubs HubAccounts
	jwt  *jwt.Service
}

func NewAuthService(hubs HubAccounts, jwt *jwt.Service) Service {
	return &authService{hubs: hubs, jwt: jwt}
}

func (s *authService) Register(ctx context.Context, in hub.RegisterInput) (*Session, error) {
	h, err := s.hubs.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.issue(h)
}

func (s *authService) Login(ctx context.Context, username, password string) (*Session, error) {
	h, err := s.hubs.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issue(h)
}

func (s *authService) issue(h *hub.Hub) (*Session, error) {
	token, err := s.jwt.GenerateToken(h.ID.String(), RoleHub)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to issue token", err)
	}
	return &Session{Token: token, Hub: h}, nil
}
