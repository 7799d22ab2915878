package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/services"
)

// OrderHandlers handles HTTP requests for order submission and lifecycle.
type OrderHandlers struct {
	orderService services.OrderServiceInterface
}

// NewOrderHandlers creates a new order handlers instance.
func NewOrderHandlers(orderService services.OrderServiceInterface) *OrderHandlers {
	return &OrderHandlers{orderService: orderService}
}

// SubmitOrder handles POST /restaurants/:restaurantId/tables/:tableId/orders.
func (h *OrderHandlers) SubmitOrder(c echo.Context) error {
	var req struct {
		CustomerName        string                `json:"customer_name"`
		SpecialInstructions string                `json:"special_instructions"`
		Items               []services.SubmitItem `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	orderID, err := h.orderService.Submit(c.Request().Context(), &services.SubmitRequest{
		RestaurantID:        c.Param("restaurantId"),
		TableID:             c.Param("tableId"),
		CustomerName:        req.CustomerName,
		SpecialInstructions: req.SpecialInstructions,
		Items:               req.Items,
	})
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"order_id": orderID})
}

// GetOrder handles GET /restaurants/:restaurantId/orders/:id.
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	order, err := h.orderService.GetOrder(c.Request().Context(), c.Param("restaurantId"), c.Param("id"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /restaurants/:restaurantId/orders.
func (h *OrderHandlers) ListOrders(c echo.Context) error {
	orders, err := h.orderService.ListOrders(c.Request().Context(), c.Param("restaurantId"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

// CompleteOrder handles POST /restaurants/:restaurantId/orders/:id/complete.
func (h *OrderHandlers) CompleteOrder(c echo.Context) error {
	return h.lifecycle(c, h.orderService.Complete)
}

// ReopenOrder handles POST /restaurants/:restaurantId/orders/:id/reopen.
func (h *OrderHandlers) ReopenOrder(c echo.Context) error {
	return h.lifecycle(c, h.orderService.Reopen)
}

// CancelOrder handles POST /restaurants/:restaurantId/orders/:id/cancel.
// The body names the cancelling side; staff clients default to restaurant.
func (h *OrderHandlers) CancelOrder(c echo.Context) error {
	var req struct {
		By string `json:"by"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	by := models.CancelActor(req.By)
	switch by {
	case "":
		by = models.CancelledByRestaurant
	case models.CancelledByCustomer, models.CancelledByRestaurant:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid cancel actor")
	}

	err := h.orderService.Cancel(c.Request().Context(), c.Param("restaurantId"), c.Param("id"), by)
	if err != nil {
		return orderHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UncancelOrder handles POST /restaurants/:restaurantId/orders/:id/uncancel.
func (h *OrderHandlers) UncancelOrder(c echo.Context) error {
	return h.lifecycle(c, h.orderService.Uncancel)
}

// RemoveItem handles DELETE /restaurants/:restaurantId/orders/:id/items/:productId.
func (h *OrderHandlers) RemoveItem(c echo.Context) error {
	err := h.orderService.RemoveItem(c.Request().Context(), c.Param("restaurantId"), c.Param("id"), c.Param("productId"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandlers) lifecycle(c echo.Context, op func(ctx context.Context, restaurantID, orderID string) error) error {
	if err := op(c.Request().Context(), c.Param("restaurantId"), c.Param("id")); err != nil {
		return orderHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// orderHTTPError maps the engine's error taxonomy onto HTTP statuses. The
// UI shows a generic retry affordance for 409/503 and a specific message
// for the 4xx cases.
func orderHTTPError(err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrBadQuantity),
		errors.Is(err, services.ErrProductUnavailable),
		errors.Is(err, services.ErrTableInactive),
		errors.Is(err, repositories.ErrNotInCatalog):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrOrderNotFound),
		errors.Is(err, services.ErrItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Order no longer exists")
	case errors.Is(err, services.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, repositories.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "Concurrent update, please retry")
	case errors.Is(err, repositories.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Store temporarily unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal error")
	}
}
