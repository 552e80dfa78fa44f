package dispatch

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/pkg/apperrors"
	"posyandu-logistics/internal/shipment"
)

type Handler struct {
	coordinator Coordinator
}

func NewHandler(coordinator Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type ItemRequest struct {
	SKU string `json:"sku" binding:"required"`
	Qty int    `json:"qty" binding:"required,gt=0"`
}

type AssignRequest struct {
	DriverID string        `json:"driverId" binding:"required,uuid"`
	Items    []ItemRequest `json:"items" binding:"required,min=1,dive"`
	ETA      string        `json:"eta"`
}

type DeliveryConfirmRequest struct {
	ExternalRequestID string `json:"externalRequestId" binding:"required"`
}

func (h *Handler) Assign(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}
	shipmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation("invalid shipment id"))
		return
	}
	var req AssignRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	items := make(shipment.Items, len(req.Items))
	for i, it := range req.Items {
		items[i] = shipment.Item{SKU: it.SKU, Qty: it.Qty}
	}

	sh, err := h.coordinator.Assign(c.Request.Context(), AssignInput{
		ShipmentID: shipmentID,
		HubID:      hubID,
		DriverID:   uuid.MustParse(req.DriverID),
		Items:      items,
		ETA:        req.ETA,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

func (h *Handler) ConfirmDelivery(c *gin.Context) {
	var req DeliveryConfirmRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	sh, err := h.coordinator.Complete(c.Request.Context(), req.ExternalRequestID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

func (h *Handler) Cancel(c *gin.Context) {
	sh, err := h.coordinator.Cancel(c.Request.Context(), c.Param("externalRequestId"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}
