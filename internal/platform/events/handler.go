package events

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/billing/internal/platform/auth"
)

// Handler exposes subscription management via Echo HTTP routes.
type Handler struct {
	publisher *Publisher
}

func NewHandler(publisher *Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// RegisterRoutes binds all subscription management routes under
// /subscriptions on the given group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/subscriptions", auth.RequireRole("admin"))
	g.POST("", h.Subscribe)
	g.GET("", h.ListSubscriptions)
	g.GET("/:id", h.GetSubscription)
	g.PUT("/:id", h.UpdateSubscription)
	g.DELETE("/:id", h.DeleteSubscription)
	g.POST("/:id/test", h.TestSubscription)
	g.GET("/:id/deliveries", h.DeliveryLogs)
	g.POST("/:id/pause", h.PauseSubscription)
	g.POST("/:id/resume", h.ResumeSubscription)
	g.POST("/deliveries/:id/retry", h.RetryDelivery)
}

type subscribeRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (h *Handler) Subscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := h.publisher.Subscribe(c.Request().Context(), req.URL, req.Secret, req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	subs, total, err := h.publisher.store.ListSubscriptions(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     subs,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < total,
	})
}

func (h *Handler) GetSubscription(c echo.Context) error {
	sub, err := h.publisher.store.GetSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	return c.JSON(http.StatusOK, sub)
}

type updateSubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Status string   `json:"status"`
}

func (h *Handler) UpdateSubscription(c echo.Context) error {
	sub, err := h.publisher.store.GetSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	var req updateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL != "" {
		if err := validateSubscriptionURL(req.URL); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		sub.URL = req.URL
	}
	if len(req.Events) > 0 {
		sub.Events = req.Events
	}
	if req.Status != "" {
		sub.Status = req.Status
	}
	if err := h.publisher.store.UpdateSubscription(c.Request().Context(), sub); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeleteSubscription(c echo.Context) error {
	if err := h.publisher.store.DeleteSubscription(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TestSubscription(c echo.Context) error {
	delivery, err := h.publisher.TestSubscription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, delivery)
}

func (h *Handler) DeliveryLogs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.publisher.DeliveryLogs(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     logs,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < total,
	})
}

func (h *Handler) RetryDelivery(c echo.Context) error {
	delivery, err := h.publisher.RetryDelivery(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, delivery)
}

func (h *Handler) PauseSubscription(c echo.Context) error {
	if err := h.publisher.Pause(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) ResumeSubscription(c echo.Context) error {
	if err := h.publisher.Resume(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "active"})
}
