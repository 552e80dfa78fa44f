package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type LocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SyncRequest is the flat payload pushed by the health service.
type SyncRequest struct {
	ExternalID string           `json:"externalId" binding:"required"`
	Name       string           `json:"name" binding:"required"`
	Address    string           `json:"address"`
	Location   *LocationPayload `json:"location"`
}

func (h *Handler) Sync(c *gin.Context) {
	var req SyncRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	in := SyncInput{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Address:    req.Address,
	}
	if req.Location != nil {
		loc := common.NewLocation(req.Location.Lat, req.Location.Lng)
		in.Location = &loc
	}

	post, err := h.service.Sync(c.Request.Context(), in)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handler) GetShadow(c *gin.Context) {
	post, err := h.service.GetByExternalID(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// ListAssigned returns the posts served by the calling hub.
func (h *Handler) ListAssigned(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}
	posts, err := h.service.ListByHub(c.Request.Context(), hubID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	if posts == nil {
		posts = []*HealthPost{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}
