package checkout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/axstorch/foodcourt/cartstore"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func lineItem(id string, price float64, qty int32) cartstore.LineItem {
	return cartstore.LineItem{
		CatalogItem: cartstore.CatalogItem{ItemID: id, Name: "item " + id, UnitPrice: price},
		Quantity:    qty,
	}
}

func TestSubmit(t *testing.T) {
	var got orderRequest
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key-id" || pass != "key-secret" {
			t.Errorf("basic auth = %q/%q/%v, want gateway credentials", user, pass, ok)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Order{
			ID:       "order_123",
			Amount:   got.Amount,
			Currency: got.Currency,
			Receipt:  got.Receipt,
		})
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, "key-id", "key-secret", testLogger())
	items := []cartstore.LineItem{
		lineItem("5", 150, 2),
		lineItem("8", 70, 1),
	}

	order, err := c.Submit(context.Background(), items)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if order.ID != "order_123" {
		t.Errorf("order ID = %q, want order_123", order.ID)
	}
	// 2*150 + 70 rupees = 37000 paise.
	if got.Amount != 37000 {
		t.Errorf("amount = %d paise, want 37000", got.Amount)
	}
	if got.Currency != "INR" {
		t.Errorf("currency = %q, want INR", got.Currency)
	}
	if !strings.HasPrefix(got.Receipt, "receipt_") {
		t.Errorf("receipt = %q, want receipt_ prefix", got.Receipt)
	}
	if len(got.Lines) != 2 || got.Lines[0].ItemID != "5" || got.Lines[0].Quantity != 2 {
		t.Errorf("lines = %+v", got.Lines)
	}
}

func TestSubmitRoundsToPaise(t *testing.T) {
	var got orderRequest
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Order{ID: "order_1"})
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, "k", "s", testLogger())
	// 3 * 13.99 = 41.97, with float accumulation error.
	if _, err := c.Submit(context.Background(), []cartstore.LineItem{lineItem("7", 13.99, 3)}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Amount != 4197 {
		t.Errorf("amount = %d paise, want 4197", got.Amount)
	}
}

func TestSubmitEmptyCart(t *testing.T) {
	c := NewClient("http://unused", "k", "s", testLogger())
	_, err := c.Submit(context.Background(), nil)
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("err = %v, want ErrEmptyCart", err)
	}
}

func TestSubmitGatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, "k", "s", testLogger())
	if _, err := c.Submit(context.Background(), []cartstore.LineItem{lineItem("1", 10, 1)}); err == nil {
		t.Error("Submit returned nil error for gateway failure")
	}
}

func TestSubmitRejectsMissingOrderID(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"amount": 1000}`)
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, "k", "s", testLogger())
	if _, err := c.Submit(context.Background(), []cartstore.LineItem{lineItem("1", 10, 1)}); err == nil {
		t.Error("Submit returned nil error for response without order id")
	}
}
