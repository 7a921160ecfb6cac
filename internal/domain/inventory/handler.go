package inventory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/billing/internal/platform/auth"
	"github.com/clinicore/billing/pkg/pagination"
)

// Handler provides the HTTP surface for inventory transactions.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("billing", "auditor")

	api.GET("/inventory-transactions", h.ListTransactions, role)
	api.GET("/inventory/:sku/on-hand", h.OnHand, role)
	api.POST("/inventory-transactions", h.PostAdjustment, auth.RequireRole("billing"))
}

func (h *Handler) ListTransactions(c echo.Context) error {
	pg := pagination.FromContext(c)
	if sku := c.QueryParam("sku"); sku != "" {
		items, total, err := h.svc.ListBySKU(c.Request().Context(), sku, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) OnHand(c echo.Context) error {
	sku := c.Param("sku")
	qty, err := h.svc.OnHand(c.Request().Context(), sku)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sku": sku, "on_hand": qty})
}

type adjustmentRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) PostAdjustment(c echo.Context) error {
	var req adjustmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.ActorIDFromContext(c.Request().Context())
	t, err := h.svc.PostAdjustment(c.Request().Context(), req.SKU, req.Quantity, actorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}
