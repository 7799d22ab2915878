package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

func searchFixture() []*models.Order {
	return []*models.Order{
		{
			ID:           "order-aa0123",
			CustomerName: "Jane Doe",
			TableName:    "Patio 1",
			Items:        []models.OrderItem{{ProductID: "p1", Name: "Margherita Pizza"}},
		},
		{
			ID:                  "order-bb0456",
			CustomerName:        "Johnny",
			TableName:           "Window 2",
			SpecialInstructions: "birthday candles please",
			Items:               []models.OrderItem{{ProductID: "p2", Name: "Lemonade"}},
		},
		{
			ID:        "order-cc0123",
			TableName: "Bar",
			Items:     []models.OrderItem{{ProductID: "p3", Name: "Janissary Coffee"}},
		},
	}
}

func TestSearchEmptyTermReturnsAll(t *testing.T) {
	orders := searchFixture()
	assert.Equal(t, orders, Search(orders, ""))
	assert.Equal(t, orders, Search(orders, "   "))
}

func TestSearchMatchesAcrossTextFields(t *testing.T) {
	orders := searchFixture()

	// Customer name and item name, case-insensitive.
	got := Search(orders, "jan")
	require.Len(t, got, 2)
	assert.Equal(t, "order-aa0123", got[0].ID)
	assert.Equal(t, "order-cc0123", got[1].ID)

	// Table name.
	got = Search(orders, "window")
	require.Len(t, got, 1)
	assert.Equal(t, "order-bb0456", got[0].ID)

	// Special instructions.
	got = Search(orders, "BIRTHDAY")
	require.Len(t, got, 1)
	assert.Equal(t, "order-bb0456", got[0].ID)

	assert.Empty(t, Search(orders, "sushi"))
}

func TestSearchNumberMode(t *testing.T) {
	orders := searchFixture()

	got := Search(orders, "#0123")
	require.Len(t, got, 2)
	assert.Equal(t, "order-aa0123", got[0].ID)
	assert.Equal(t, "order-cc0123", got[1].ID)

	got = Search(orders, "#456")
	require.Len(t, got, 1)
	assert.Equal(t, "order-bb0456", got[0].ID)

	// "#" suppresses the text fields entirely.
	assert.Empty(t, Search(orders, "#jane"))
}

func TestSearchNumberModeIsCaseInsensitive(t *testing.T) {
	orders := searchFixture()
	assert.Len(t, Search(orders, "#aa0123"), 1)
	assert.Len(t, Search(orders, "#AA0123"), 1)
}

func TestSuggestionsTextMode(t *testing.T) {
	orders := searchFixture()

	got := Suggestions(orders, "jan")
	assert.Equal(t, []string{"Jane Doe", "Janissary Coffee"}, got)

	assert.Nil(t, Suggestions(orders, ""))
	assert.Empty(t, Suggestions(orders, "sushi"))
}

func TestSuggestionsNumberMode(t *testing.T) {
	orders := searchFixture()

	got := Suggestions(orders, "#0123")
	assert.Equal(t, []string{"#AA0123", "#CC0123"}, got)
}

func TestSuggestionsDeduplicateAndCap(t *testing.T) {
	var orders []*models.Order
	for i := 0; i < 10; i++ {
		orders = append(orders, &models.Order{
			ID:           fmt.Sprintf("order-%02d", i),
			CustomerName: "Jane",
			Items:        []models.OrderItem{{Name: fmt.Sprintf("Jangly Fries %d", i)}},
		})
	}

	got := Suggestions(orders, "jan")
	require.Len(t, got, maxSuggestions)
	assert.Equal(t, "Jane", got[0], "repeated values collapse to one suggestion")
	assert.Equal(t, "Jangly Fries 0", got[1])
	assert.Equal(t, "Jangly Fries 3", got[4])
}
