package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/dispatch"
)

// StreamHandlers exposes the notification dispatcher as a server-sent
// event stream for the staff dashboard.
type StreamHandlers struct {
	dispatcher *dispatch.Dispatcher
}

// NewStreamHandlers creates a new stream handlers instance.
func NewStreamHandlers(dispatcher *dispatch.Dispatcher) *StreamHandlers {
	return &StreamHandlers{dispatcher: dispatcher}
}

// StreamOrders handles GET /restaurants/:restaurantId/orders/stream. Each
// dispatcher event becomes one SSE message; the connection lives until the
// client goes away.
func (h *StreamHandlers) StreamOrders(c echo.Context) error {
	ctx := c.Request().Context()
	sub := h.dispatcher.Subscribe(ctx, c.Param("restaurantId"))

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: orders\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
