package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/pkg/apperrors"
)

type Handler struct {
	authService Service
}

func NewHandler(authService Service) *Handler {
	return &Handler{authService: authService}
}

type RegisterRequest struct {
	Username string   `json:"username" binding:"required,min=3"`
	Password string   `json:"password" binding:"required,min=8"`
	Name     string   `json:"name" binding:"required"`
	Address  string   `json:"address"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}
	loc, err := hub.OptionalLocation(req.Lat, req.Lng)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	session, err := h.authService.Register(c.Request.Context(), hub.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Address:  req.Address,
		Location: loc,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
