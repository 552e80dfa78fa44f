package hub

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"posyandu-logistics/internal/common"
	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/middleware"
	"posyandu-logistics/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type UpdateProfileRequest struct {
	Name    *string  `json:"name"`
	Address *string  `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

type SetStockRequest struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity" binding:"required,gte=0"`
	Unit     string `json:"unit"`
	MinStock int    `json:"min_stock" binding:"gte=0"`
}

// CallerHubID reads the hub id placed on the context by the auth middleware.
func CallerHubID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(middleware.KeyHubID))
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewUnauthorized("token does not identify a hub"))
		return uuid.Nil, false
	}
	return id, true
}

// OptionalLocation builds a location only when both coordinates are present.
func OptionalLocation(lat, lng *float64) (*common.Location, error) {
	switch {
	case lat == nil && lng == nil:
		return nil, nil
	case lat == nil || lng == nil:
		return nil, domainerrors.NewValidation("lat and lng must be provided together")
	}
	loc := common.NewLocation(*lat, *lng)
	return &loc, nil
}

func (h *Handler) GetProfile(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	hb, err := h.service.GetByID(c.Request.Context(), hubID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, hb)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}
	loc, err := OptionalLocation(req.Lat, req.Lng)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	hb, err := h.service.UpdateProfile(c.Request.Context(), hubID, UpdateProfileInput{
		Name:     req.Name,
		Address:  req.Address,
		Location: loc,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, hb)
}

func (h *Handler) ListInventory(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	items, err := h.service.ListInventory(c.Request.Context(), hubID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	low := 0
	for _, it := range items {
		if it.LowStock() {
			low++
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "low_stock": low})
}

func (h *Handler) SetStock(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	var req SetStockRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	item, err := h.service.SetStock(c.Request.Context(), hubID, SetStockInput{
		SKU:      c.Param("sku"),
		Name:     req.Name,
		Quantity: *req.Quantity,
		Unit:     req.Unit,
		MinStock: req.MinStock,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) ListMovements(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	out, err := h.service.ListMovements(c.Request.Context(), hubID, c.Query("sku"), limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": out})
}

func (h *Handler) Stats(c *gin.Context) {
	hubID, ok := CallerHubID(c)
	if !ok {
		return
	}
	st, err := h.service.Stats(c.Request.Context(), hubID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
