package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/billing/internal/automation"
	"github.com/clinicore/billing/internal/platform/auth"
)

// Handler is the inbound boundary for automation triggers. It binds the
// payload, attaches the authenticated actor, forwards to the engine, and
// maps classified errors onto HTTP statuses.
type Handler struct {
	engine *automation.Engine
	logger zerolog.Logger
}

func NewHandler(engine *automation.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger.With().Str("component", "event_gateway").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/events", auth.RequireRole("billing"))
	g.POST("/encounter-completed", h.EncounterCompleted)
	g.POST("/payment-recorded", h.PaymentRecorded)
	g.POST("/receipt-void", h.VoidRequested)
	g.POST("/receipt-refund", h.RefundRequested)
}

func (h *Handler) EncounterCompleted(c echo.Context) error {
	var req encounterCompletedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	rec, err := h.engine.HandleEncounterCompleted(c.Request().Context(), automation.EncounterCompleted{
		EncounterID: req.EncounterID,
		PatientID:   req.PatientID,
		Items:       req.BillableItems,
		Version:     defaultVersion(req.Version),
		Actor:       actor,
	})
	return h.respond(c, http.StatusCreated, rec, err)
}

func (h *Handler) PaymentRecorded(c echo.Context) error {
	var req paymentRecordedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	receiptID, err := uuid.Parse(req.ReceiptID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid receipt_id")
	}
	rec, err := h.engine.HandlePaymentRecorded(c.Request().Context(), automation.PaymentRecorded{
		ReceiptID: receiptID,
		Amount:    req.Amount,
		Method:    req.Method,
		Version:   defaultVersion(req.Version),
		Actor:     actor,
	})
	return h.respond(c, http.StatusOK, rec, err)
}

func (h *Handler) VoidRequested(c echo.Context) error {
	var req voidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	receiptID, err := uuid.Parse(req.ReceiptID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid receipt_id")
	}
	rec, err := h.engine.HandleVoidRequested(c.Request().Context(), automation.VoidRequested{
		ReceiptID: receiptID,
		Reason:    req.Reason,
		Version:   defaultVersion(req.Version),
		Actor:     actor,
	})
	return h.respond(c, http.StatusOK, rec, err)
}

func (h *Handler) RefundRequested(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	receiptID, err := uuid.Parse(req.ReceiptID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid receipt_id")
	}
	rec, err := h.engine.HandleRefundRequested(c.Request().Context(), automation.RefundRequested{
		ReceiptID: receiptID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Version:   defaultVersion(req.Version),
		Actor:     actor,
	})
	return h.respond(c, http.StatusOK, rec, err)
}

func requireActor(c echo.Context) (string, error) {
	actor := auth.ActorIDFromContext(c.Request().Context())
	if actor == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authenticated actor required")
	}
	return actor, nil
}

// respond maps engine outcomes to HTTP. Duplicate triggers are reported
// as a successful no-op so at-least-once senders stop redelivering;
// retryable failures carry a Retry-After hint.
func (h *Handler) respond(c echo.Context, successStatus int, body interface{}, err error) error {
	if err == nil {
		return c.JSON(successStatus, body)
	}
	switch automation.KindOf(err) {
	case automation.KindDuplicateTrigger:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "duplicate",
			"detail": err.Error(),
		})
	case automation.KindInvalidAmount, automation.KindInvalidTransition, automation.KindInsufficientStock:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case automation.KindUpstreamUnavailable, automation.KindStoreConflict:
		c.Response().Header().Set("Retry-After", "5")
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Warn().Err(err).Str("path", c.Path()).Msg("trigger rejected")
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
