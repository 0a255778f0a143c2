package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	"github.com/vladislavdragonenkov/shopcart/internal/pricing"
	"github.com/vladislavdragonenkov/shopcart/internal/service/cart"
)

const maxBodyBytes = 1 << 20

var errQuantityRequired = fmt.Errorf("%w: quantity is required", domain.ErrMalformedPayload)

// money сериализуется JSON-числом с двумя знаками после точки.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

type itemRequest struct {
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int             `json:"quantity"`
}

// addItemRequest принимает позицию как на верхнем уровне, так и в поле item.
type addItemRequest struct {
	itemRequest
	Item *itemRequest `json:"item"`
}

type customerRequest struct {
	LoyaltyLevel string `json:"loyalty_level"`
}

type createCartRequest struct {
	Items       []itemRequest    `json:"items"`
	LoyaltyTier *string          `json:"loyalty_tier"`
	Customer    *customerRequest `json:"customer"`
}

type updateQuantityRequest struct {
	ItemID   string `json:"item_id"`
	Quantity *int   `json:"quantity"`
}

type itemResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Price      money  `json:"price"`
	Quantity   int    `json:"quantity"`
	LineTotal  money  `json:"line_total"`
	Discount   money  `json:"discount"`
	FinalTotal money  `json:"final_total"`
}

type discountResponse struct {
	Type       string `json:"type"`
	Percentage money  `json:"percentage"`
	Amount     money  `json:"amount"`
}

type summaryResponse struct {
	CartID      string             `json:"cart_id"`
	Items       []itemResponse     `json:"items"`
	Subtotal    money              `json:"subtotal"`
	Discounts   []discountResponse `json:"discounts"`
	Total       money              `json:"total"`
	LoyaltyTier string             `json:"loyalty_tier"`
}

type createCartResponse struct {
	CartID    string          `json:"cart_id"`
	Summary   summaryResponse `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}

type listCartsResponse struct {
	CartIDs []string `json:"cart_ids"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func newSummaryResponse(summary pricing.Summary) summaryResponse {
	resp := summaryResponse{
		CartID:      summary.CartID,
		Items:       make([]itemResponse, 0, len(summary.Items)),
		Subtotal:    money(summary.Subtotal),
		Discounts:   make([]discountResponse, 0, len(summary.Discounts)),
		Total:       money(summary.Total),
		LoyaltyTier: string(summary.LoyaltyTier),
	}
	for _, line := range summary.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:         line.Item.ID,
			Name:       line.Item.Name,
			Category:   string(line.Item.Category),
			Price:      money(line.Item.UnitPrice),
			Quantity:   line.Item.Quantity,
			LineTotal:  money(line.LineTotal),
			Discount:   money(line.Discount),
			FinalTotal: money(line.FinalTotal),
		})
	}
	for _, d := range summary.Discounts {
		resp.Discounts = append(resp.Discounts, discountResponse{
			Type:       string(d.Type),
			Percentage: money(d.Percentage),
			Amount:     money(d.Amount),
		})
	}
	return resp
}

func (r itemRequest) toInput(field string) (cart.ItemInput, error) {
	if r.Price == nil {
		return cart.ItemInput{}, fmt.Errorf("%w: %s.price is required", domain.ErrMalformedPayload, field)
	}
	if r.Quantity == nil {
		return cart.ItemInput{}, fmt.Errorf("%w: %s.quantity is required", domain.ErrMalformedPayload, field)
	}
	return cart.ItemInput{
		Name:     r.Name,
		Category: r.Category,
		Price:    *r.Price,
		Quantity: *r.Quantity,
	}, nil
}

func (r createCartRequest) toServiceRequest() (cart.CreateCartRequest, error) {
	req := cart.CreateCartRequest{Items: make([]cart.ItemInput, 0, len(r.Items))}
	switch {
	case r.LoyaltyTier != nil:
		req.LoyaltyTier = *r.LoyaltyTier
	case r.Customer != nil:
		req.LoyaltyTier = r.Customer.LoyaltyLevel
	}
	for idx, item := range r.Items {
		input, err := item.toInput(fmt.Sprintf("items[%d]", idx))
		if err != nil {
			return cart.CreateCartRequest{}, err
		}
		req.Items = append(req.Items, input)
	}
	return req, nil
}

func (r addItemRequest) toInput() (cart.ItemInput, error) {
	if r.Item != nil {
		return r.Item.toInput("item")
	}
	return r.itemRequest.toInput("item")
}

// readBody читает тело запроса с ограничением размера.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return body, nil
}

func decodeJSON(body []byte, dst any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is empty", domain.ErrMalformedPayload)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("%w: invalid JSON at offset %d", domain.ErrMalformedPayload, syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("%w: field %q has invalid type", domain.ErrMalformedPayload, typeErr.Field)
		default:
			return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
	}
	return nil
}
