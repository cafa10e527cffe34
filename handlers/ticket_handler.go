package handlers

import (
	"errors"
	"net/http"

	"checkin-system/services"

	"github.com/labstack/echo/v5"
)

type TicketHandler struct {
	registry *services.RegistryService
}

func NewTicketHandler(registry *services.RegistryService) *TicketHandler {
	return &TicketHandler{registry: registry}
}

// Snapshot returns the full canonical ticket set, newest first.
func (h *TicketHandler) Snapshot(c echo.Context) error {
	tickets, err := h.registry.Snapshot(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, tickets)
}

// Scan resolves a raw scanned value to a ticket. mode=ping short-
// circuits into a pure credential check.
func (h *TicketHandler) Scan(c echo.Context) error {
	var req struct {
		Mode       string `json:"mode"`
		RawValue   string `json:"rawValue"`
		ManualCode string `json:"manualCode"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.Mode == "ping" {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	identifier := ""
	if req.ManualCode != "" {
		identifier = services.ParseIdentifier(req.ManualCode)
	} else if req.RawValue != "" {
		identifier = services.ParseIdentifier(req.RawValue)
	}
	if identifier == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No identifier provided"})
	}

	ticket, err := h.registry.FindByIdentifier(c.Request().Context(), identifier)
	if errors.Is(err, services.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Ticket not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "ticket": ticket})
}

// Use conditionally marks a ticket used. A conflict is reported as 409
// carrying the canonical record so the device can merge directly.
func (h *TicketHandler) Use(c echo.Context) error {
	var req struct {
		TicketID  string `json:"ticketId"`
		ScannedBy string `json:"scannedBy"`
		ScannedAt string `json:"scannedAt"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.TicketID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ticketId is required"})
	}

	ticket, err := h.registry.UseTicket(c.Request().Context(), req.TicketID, req.ScannedBy, req.ScannedAt)
	switch {
	case errors.Is(err, services.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Ticket not found"})
	case errors.Is(err, services.ErrTicketAlreadyUsed):
		return c.JSON(http.StatusConflict, map[string]any{
			"ok":     false,
			"ticket": ticket,
			"error":  "Ticket already used",
		})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "ticket": ticket})
}

// Issue creates a new ticket with a fresh QR code.
func (h *TicketHandler) Issue(c echo.Context) error {
	var req services.IssueInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.HolderName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "holder_name is required"})
	}

	ticket, err := h.registry.IssueTicket(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]any{"ok": true, "ticket": ticket})
}
