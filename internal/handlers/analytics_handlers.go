package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/analytics"
)

// AnalyticsHandlers serves the staff dashboard's stats, grouping, and
// search endpoints.
type AnalyticsHandlers struct {
	analyticsService *analytics.AnalyticsService
}

// NewAnalyticsHandlers creates a new analytics handlers instance.
func NewAnalyticsHandlers(analyticsService *analytics.AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{analyticsService: analyticsService}
}

// GetStats handles GET /restaurants/:restaurantId/stats.
func (h *AnalyticsHandlers) GetStats(c echo.Context) error {
	stats, err := h.analyticsService.Stats(c.Request().Context(), c.Param("restaurantId"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetDailyGroups handles GET /restaurants/:restaurantId/orders/groups/daily.
func (h *AnalyticsHandlers) GetDailyGroups(c echo.Context) error {
	groups, err := h.analyticsService.DailyGroups(c.Request().Context(), c.Param("restaurantId"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

// GetWeeklyGroups handles GET /restaurants/:restaurantId/orders/groups/weekly.
func (h *AnalyticsHandlers) GetWeeklyGroups(c echo.Context) error {
	groups, err := h.analyticsService.WeeklyGroups(c.Request().Context(), c.Param("restaurantId"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

// SearchOrders handles GET /restaurants/:restaurantId/orders/search?q=term.
func (h *AnalyticsHandlers) SearchOrders(c echo.Context) error {
	orders, err := h.analyticsService.SearchOrders(c.Request().Context(), c.Param("restaurantId"), c.QueryParam("q"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

// SearchSuggestions handles GET /restaurants/:restaurantId/orders/suggestions?q=term.
func (h *AnalyticsHandlers) SearchSuggestions(c echo.Context) error {
	suggestions, err := h.analyticsService.SearchSuggestions(c.Request().Context(), c.Param("restaurantId"), c.QueryParam("q"))
	if err != nil {
		return orderHTTPError(err)
	}
	return c.JSON(http.StatusOK, suggestions)
}
