package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dealflow/internal/analytics"
	"dealflow/internal/catalog"
	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/store"
)

const defaultListLimit = 50

type handlers struct {
	cfg    *config.Config
	svc    Services
	logger *slog.Logger
	status func(context.Context) Status
}

// ProductResponse is a product with the links generated for it.
type ProductResponse struct {
	Product    *store.Product         `json:"product"`
	Links      []*store.AffiliateLink `json:"links"`
	Deliveries []*store.Delivery      `json:"deliveries"`
}

// ConversionRequest is the body of POST /api/links/:id/conversions.
type ConversionRequest struct {
	SaleAmount float64 `json:"sale_amount"`
}

// ConversionResponse reports the commission credited for a conversion.
type ConversionResponse struct {
	LinkID string  `json:"link_id"`
	Earned float64 `json:"earned"`
}

// WithdrawResponse reports how many queued deliveries were cancelled.
type WithdrawResponse struct {
	ProductID int64 `json:"product_id"`
	Cancelled int64 `json:"cancelled"`
}

func (h *handlers) health(c *gin.Context) {
	payload := gin.H{"status": "ok", "platforms": h.svc.Registry.Names()}
	if err := h.svc.Store.Ping(c.Request.Context()); err != nil {
		payload["status"] = "degraded"
		payload["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}
	payload["database"] = "ok"
	c.JSON(http.StatusOK, payload)
}

func (h *handlers) daemonStatus(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusOK, Status{Running: true, Platforms: h.svc.Registry.Names()})
		return
	}
	c.JSON(http.StatusOK, h.status(c.Request.Context()))
}

func (h *handlers) dashboard(c *gin.Context) {
	dash, err := h.svc.Analytics.Dashboard(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (h *handlers) report(c *gin.Context) {
	days, err := queryInt(c, "days", 0)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	top, err := queryInt(c, "top", 0)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	report, err := h.svc.Analytics.Rollup(c.Request.Context(), days, top)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) dailyStats(c *gin.Context) {
	limit, err := queryInt(c, "limit", 30)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	stats, err := h.svc.Store.ListDailyStats(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *handlers) snapshot(c *gin.Context) {
	day := time.Now().UTC()
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.badRequest(c, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	stats, err := h.svc.Analytics.Snapshot(c.Request.Context(), day)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) listQueue(c *gin.Context) {
	filter := store.DeliveryFilter{Platform: strings.TrimSpace(c.Query("platform"))}
	for _, raw := range c.QueryArray("status") {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := store.ParseStatus(value)
			if !ok {
				h.badRequest(c, errors.New("unknown status "+strconv.Quote(value)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit", defaultListLimit); err != nil {
		h.badRequest(c, err)
		return
	}
	productID, err := queryInt(c, "product_id", 0)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	filter.ProductID = int64(productID)

	deliveries, err := h.svc.Store.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (h *handlers) queueStats(c *gin.Context) {
	counts, err := h.svc.Store.DeliveryStats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make(map[string]int, len(counts))
	for _, status := range store.AllStatuses() {
		out[string(status)] = counts[status]
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) tick(c *gin.Context) {
	result, err := h.svc.Scheduler.Tick(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) listProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	products, err := h.svc.Store.ListProducts(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *handlers) createProduct(c *gin.Context) {
	var req catalog.NewProduct
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	out, err := h.svc.Catalog.Ingest(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handlers) getProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	product, err := h.svc.Store.GetProduct(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	links, err := h.svc.Store.LinksForProduct(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	deliveries, err := h.svc.Store.ListDeliveries(ctx, store.DeliveryFilter{ProductID: id})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductResponse{Product: product, Links: links, Deliveries: deliveries})
}

func (h *handlers) updateProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	var patch store.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err)
		return
	}
	product, err := h.svc.Catalog.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *handlers) withdrawProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	cancelled, err := h.svc.Catalog.Withdraw(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, WithdrawResponse{ProductID: id, Cancelled: cancelled})
}

func (h *handlers) getLink(c *gin.Context) {
	link, err := h.svc.Store.GetLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *handlers) recordClick(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Analytics.RecordClick(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link_id": id, "recorded": true})
}

func (h *handlers) recordConversion(c *gin.Context) {
	var req ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	id := c.Param("id")
	earned, err := h.svc.Analytics.RecordConversion(c.Request.Context(), id, req.SaleAmount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConversionResponse{LinkID: id, Earned: earned})
}

func (h *handlers) redirect(c *gin.Context) {
	visit := analytics.Visit{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		Bot:       c.GetBool(botContextKey),
	}
	link, err := h.svc.Analytics.RecordRedirect(c.Request.Context(), c.Param("code"), visit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, link.AffiliateURL)
}

func (h *handlers) productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, errors.New("invalid product id"))
		return 0, false
	}
	return id, true
}

func (h *handlers) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// writeError maps domain errors onto HTTP status codes.
func (h *handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, analytics.ErrLinkNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, analytics.ErrInvalidSale):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrBelowThreshold):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), h.logger), "api request failed", "api_error",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return value, nil
}
