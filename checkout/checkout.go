// Package checkout submits the final cart snapshot to the payment gateway's
// order-creation endpoint. It reads the cart exactly once, never mutates it,
// and reports failure without side effects so the user can retry with the
// cart intact.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/axstorch/foodcourt/cartstore"
)

// ErrEmptyCart is returned when checkout is attempted with no line items.
var ErrEmptyCart = errors.New("checkout: cart is empty")

const defaultCurrency = "INR"

// OrderLine is one cart line in the order payload: id, quantity and the
// unit price the user saw when the item was added.
type OrderLine struct {
	ItemID    string  `json:"itemId"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// orderRequest is the gateway wire format. Amount is in the currency's
// minor unit (paise for INR), per the gateway contract.
type orderRequest struct {
	Amount   int64       `json:"amount"`
	Currency string      `json:"currency"`
	Receipt  string      `json:"receipt"`
	Lines    []OrderLine `json:"lines"`
}

// Order is the gateway's record of a created order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Client talks to the payment gateway's order endpoint with Basic auth.
type Client struct {
	log       logrus.FieldLogger
	http      *http.Client
	url       string
	keyID     string
	keySecret string
	currency  string
}

// NewClient creates a checkout client. url is the full order-creation
// endpoint; keyID and keySecret are the gateway API credentials.
func NewClient(url, keyID, keySecret string, log logrus.FieldLogger) *Client {
	return &Client{
		log:       log,
		http:      &http.Client{Timeout: 30 * time.Second},
		url:       url,
		keyID:     keyID,
		keySecret: keySecret,
		currency:  defaultCurrency,
	}
}

// Submit creates a gateway order for the given cart snapshot and returns
// it. On any failure the error is returned and nothing else happens; the
// caller decides whether to clear the cart, and only on success.
func (c *Client) Submit(ctx context.Context, items []cartstore.LineItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]OrderLine, 0, len(items))
	var total float64
	for _, it := range items {
		lines = append(lines, OrderLine{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		total += it.UnitPrice * float64(it.Quantity)
	}

	payload := orderRequest{
		Amount:   toMinorUnit(total),
		Currency: c.currency,
		Receipt:  "receipt_" + uuid.NewString(),
		Lines:    lines,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode order")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build order request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	c.log.WithFields(logrus.Fields{
		"receipt": payload.Receipt,
		"amount":  payload.Amount,
		"lines":   len(lines),
	}).Info("submitting order to payment gateway")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "submit order")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("payment gateway returned %d: %s", resp.StatusCode, msg)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, errors.Wrap(err, "decode order response")
	}
	if order.ID == "" {
		return nil, errors.New("payment gateway returned no order id")
	}
	return &order, nil
}

// toMinorUnit converts a major-unit amount to the currency's minor unit
// (e.g. rupees to paise), rounding at this boundary only.
func toMinorUnit(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
