// Package services exposes the cart over HTTP for the screen layer, plus a
// gRPC health endpoint for probes. Handlers are thin: decode, delegate to
// the store or a collaborator, encode.
package services

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/axstorch/foodcourt/cartstore"
	"github.com/axstorch/foodcourt/catalog"
	"github.com/axstorch/foodcourt/checkout"
)

// Server holds the cart store and its collaborators.
type Server struct {
	log      logrus.FieldLogger
	store    *cartstore.Store
	catalog  *catalog.Catalog
	checkout *checkout.Client
}

// NewServer creates the HTTP layer. checkoutClient may be nil when no
// payment gateway is configured; the checkout route then answers 503.
func NewServer(store *cartstore.Store, cat *catalog.Catalog, checkoutClient *checkout.Client, log logrus.FieldLogger) *Server {
	return &Server{
		log:      log,
		store:    store,
		catalog:  cat,
		checkout: checkoutClient,
	}
}

// Router builds the route table with tracing middleware attached.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("cartservice"))

	r.HandleFunc("/menu", s.menuHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart", s.viewCartHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart", s.clearCartHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items", s.addItemHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{itemID}", s.updateItemHandler).Methods(http.MethodPatch)
	r.HandleFunc("/cart/items/{itemID}", s.removeItemHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cart/refresh", s.refreshCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout", s.checkoutHandler).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	return r
}

// cartView is the screen-facing cart representation.
type cartView struct {
	Items      []cartstore.LineItem `json:"items"`
	TotalPrice float64              `json:"totalPrice"`
	TotalItems int32                `json:"totalItems"`
	Loading    bool                 `json:"loading"`
}

func (s *Server) view() cartView {
	return cartView{
		Items:      s.store.Items(),
		TotalPrice: s.store.TotalPrice(),
		TotalItems: s.store.TotalItems(),
		Loading:    s.store.Loading(),
	}
}

func (s *Server) menuHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.view())
}

type addItemRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) addItemHandler(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.ItemID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("itemId is required"))
		return
	}
	item, ok := s.catalog.Get(req.ItemID)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.Errorf("unknown item %q", req.ItemID))
		return
	}
	s.store.AddItem(item)
	s.log.WithField("itemId", req.ItemID).Debug("item added to cart")
	s.writeJSON(w, http.StatusCreated, s.view())
}

type updateItemRequest struct {
	Delta int32 `json:"delta"`
}

func (s *Server) updateItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemID"]
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	s.store.UpdateQuantity(itemID, req.Delta)
	s.writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	s.store.RemoveItem(mux.Vars(r)["itemID"])
	s.writeJSON(w, http.StatusOK, s.view())
}

// refreshCartHandler reloads the cart from storage, the screen-focus hook.
// A storage failure is logged and the previous cart is served: storage
// trouble is never the user's problem outside of checkout.
func (s *Server) refreshCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Refresh(r.Context()); err != nil {
		s.log.WithError(err).Warn("cart refresh failed")
	}
	s.writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, errors.Wrap(err, "clear cart"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.view())
}

// checkoutResponse pairs the gateway order with the cleared cart.
type checkoutResponse struct {
	Order *checkout.Order `json:"order"`
	Cart  cartView        `json:"cart"`
}

// checkoutHandler reads the cart once, submits it, and clears it only after
// the gateway accepts the order. On gateway failure the cart is untouched
// so the user can retry.
func (s *Server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	if s.checkout == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("checkout is not configured"))
		return
	}
	items := s.store.Items()
	order, err := s.checkout.Submit(r.Context(), items)
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.log.WithError(err).Error("order submission failed")
		s.writeError(w, http.StatusBadGateway, errors.New("order submission failed, please retry"))
		return
	}
	if err := s.store.Clear(r.Context()); err != nil {
		// The order is already placed; the cart clear can only be retried
		// locally. Log and report success for the order.
		s.log.WithError(err).Error("failed to clear cart after checkout")
	}
	s.log.WithFields(logrus.Fields{
		"orderId": order.ID,
		"amount":  order.Amount,
	}).Info("checkout complete")
	s.writeJSON(w, http.StatusOK, checkoutResponse{Order: order, Cart: s.view()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !s.store.Ping(r.Context()) {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("cart storage unreachable"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
