package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	appreservation "github.com/man-1982/commerce-shop/internal/application/reservation"
	appstock "github.com/man-1982/commerce-shop/internal/application/stock"
	domproduct "github.com/man-1982/commerce-shop/internal/domain/product"
	"github.com/man-1982/commerce-shop/internal/observability"
	"github.com/man-1982/commerce-shop/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	reservations *appreservation.Service
	catalog      *appstock.Catalog
	log          observability.Logger
	tel          observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

func NewHandler(reservations *appreservation.Service, catalog *appstock.Catalog, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		reservations: reservations,
		catalog:      catalog,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger) → Access log → Handler
	h.muxHandle(mux, "POST /cart", h.handleCreateEntry)
	h.muxHandle(mux, "PATCH /cart/add", h.handleAddQuantity)
	h.muxHandle(mux, "GET /cart/{cid}", h.handleGetEntry)
	h.muxHandle(mux, "DELETE /cart/{cid}/item", h.handleRemoveQuantity)
	h.muxHandle(mux, "PATCH /cart/{cid}/close", h.handleCloseEntry)
	h.muxHandle(mux, "DELETE /cart/{cid}", h.handleDeleteEntry)

	h.muxHandle(mux, "POST /products", h.handleCreateProduct)
	h.muxHandle(mux, "GET /products/{pid}", h.handleGetProduct)
	h.muxHandle(mux, "PATCH /products/{pid}", h.handleUpdateProduct)
	h.muxHandle(mux, "DELETE /products/{pid}", h.handleDeleteProduct)

	h.muxHandle(mux, "GET /health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), pattern)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type createEntryRequest struct {
	UID      string `json:"uid"`
	PID      string `json:"pid"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := h.reservations.CreateEntry(r.Context(), appreservation.CreateEntryInput{
		UID:      req.UID,
		PID:      req.PID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type addQuantityRequest struct {
	UID      string `json:"uid"`
	PID      string `json:"pid"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) handleAddQuantity(w http.ResponseWriter, r *http.Request) {
	var req addQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := h.reservations.AddQuantity(r.Context(), appreservation.AddQuantityInput{
		UID:      req.UID,
		PID:      req.PID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type removeQuantityRequest struct {
	PID      string `json:"pid"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) handleRemoveQuantity(w http.ResponseWriter, r *http.Request) {
	var req removeQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := h.reservations.RemoveQuantity(r.Context(), appreservation.RemoveQuantityInput{
		CID:      r.PathValue("cid"),
		PID:      req.PID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	view, err := h.reservations.GetEntry(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCloseEntry(w http.ResponseWriter, r *http.Request) {
	view, err := h.reservations.CloseEntry(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	view, err := h.reservations.DeleteEntry(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createProductRequest struct {
	Title string          `json:"title"`
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
}

type productResponse struct {
	PID    string            `json:"pid"`
	Title  string            `json:"title"`
	SKU    string            `json:"sku"`
	Price  decimal.Decimal   `json:"price"`
	Stock  int64             `json:"stock"`
	Status domproduct.Status `json:"status"`
}

func productView(p *domproduct.Product) productResponse {
	return productResponse{
		PID:    p.PID,
		Title:  p.Title,
		SKU:    p.SKU,
		Price:  p.Price,
		Stock:  p.Stock,
		Status: p.Status,
	}
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), appstock.CreateProductInput{
		Title: req.Title,
		SKU:   req.SKU,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productView(p))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), r.PathValue("pid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productView(p))
}

type updateProductRequest struct {
	Title  *string            `json:"title"`
	SKU    *string            `json:"sku"`
	Price  *decimal.Decimal   `json:"price"`
	Status *domproduct.Status `json:"status"`
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.catalog.UpdateProduct(r.Context(), r.PathValue("pid"), appstock.UpdateProductInput{
		Title:  req.Title,
		SKU:    req.SKU,
		Price:  req.Price,
		Status: req.Status,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productView(p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), r.PathValue("pid")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("commerce-shop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appreservation.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, appreservation.ErrNotFound),
		errors.Is(err, domproduct.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, appreservation.ErrInvalidProduct),
		errors.Is(err, appreservation.ErrInvalidRequest),
		errors.Is(err, domproduct.ErrInvalidPrice),
		errors.Is(err, domproduct.ErrInvalidStock):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, appreservation.ErrTimeout),
		errors.Is(err, appstock.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
