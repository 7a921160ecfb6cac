package receipt

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/billing/internal/platform/auth"
	"github.com/clinicore/billing/pkg/pagination"
)

// Handler provides the HTTP read/create surface for receipts.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("billing", "auditor")

	api.GET("/receipts", h.ListReceipts, role)
	api.GET("/receipts/:id", h.GetReceipt, role)
	api.POST("/receipts", h.CreateReceipt, auth.RequireRole("billing"))
}

func (h *Handler) CreateReceipt(c echo.Context) error {
	var rc Receipt
	if err := c.Bind(&rc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.ActorIDFromContext(c.Request().Context())
	if err := h.svc.CreateDraft(c.Request().Context(), &rc, actorID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rc)
}

func (h *Handler) GetReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "receipt not found")
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) ListReceipts(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"patient", "status", "encounter"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
