package shipment

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

type CreateRequestBody struct {
	ExternalRequestID string `json:"externalRequestId" binding:"required"`
	PostExternalID    string `json:"postExternalId" binding:"required"`
	PatientSummary    string `json:"patientSummary"`
	Urgency           string `json:"urgency" binding:"omitempty,oneof=LOW NORMAL HIGH CRITICAL"`
}

func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateRequestBody
	if !apperrors.BindJSON(c, &req) {
		return
	}

	sh, created, err := h.service.CreateRequest(c.Request.Context(), CreateRequestInput{
		ExternalRequestID: req.ExternalRequestID,
		PostExternalID:    req.PostExternalID,
		PatientSummary:    req.PatientSummary,
		Urgency:           req.Urgency,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, sh)
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

	out, err := h.service.ListByHub(c.Request.Context(), hubID, status)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	if out == nil {
		out = []*Shipment{}
	}
	c.JSON(http.StatusOK, gin.H{"shipments": out})
}

func (h *Handler) Get(c *gin.Context) {
	hubID, ok := hub.CallerHubID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation("invalid shipment id"))
		return
	}

	sh, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	if sh.HubID != hubID {
		apperrors.ToHTTPError(c, domainerrors.ShipmentNotOwned())
		return
	}
	c.JSON(http.StatusOK, sh)
}
