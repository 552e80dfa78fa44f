package driver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	Name          string `json:"name" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	VehicleNumber string `json:"vehicle_number"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=AVAILABLE ON_DELIVERY OFF_DUTY"`
}

func (h *Handler) Create(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}
	var req CreateRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	d, err := h.service.Create(c.Request.Context(), hubID, CreateInput{
		Name:          req.Name,
		Phone:         req.Phone,
		VehicleNumber: req.VehicleNumber,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) List(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}

	var status *Status
	if raw := c.Query("status"); raw != "" {
		st := Status(raw)
		status = &st
	}

	drivers, err := h.service.List(c.Request.Context(), hubID, status)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	if drivers == nil {
		drivers = []*Driver{}
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}
	driverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation("invalid driver id"))
		return
	}
	var req UpdateStatusRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	d, err := h.service.UpdateStatus(c.Request.Context(), hubID, driverID, Status(req.Status))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
