package api

import (
	"net/http"
	"time"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	donations *service.DonationService
	admin     *service.AdminService
	catalog   *service.CatalogService
	gateway   service.Gateway
	dedupe    WebhookDeduper
	gate      *auth.Gate
	users     UserUpserter
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	donations *service.DonationService,
	admin *service.AdminService,
	catalog *service.CatalogService,
	gateway service.Gateway,
	dedupe WebhookDeduper,
	gate *auth.Gate,
	users UserUpserter,
) *Handler {
	return &Handler{
		orders:    orders,
		donations: donations,
		admin:     admin,
		catalog:   catalog,
		gateway:   gateway,
		dedupe:    dedupe,
		gate:      gate,
		users:     users,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(authMiddleware(h.gate, h.users))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/razorpay", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)

		v1.POST("/donations/order", h.createPaymentOrder)
		v1.POST("/donations/verify", h.verifyPayment)
		v1.POST("/donations/direct", h.recordDirectDonation)
		v1.GET("/donations", h.listDonations)
		v1.GET("/donations/:id", h.getDonation)

		v1.POST("/admin/role", h.setAdminRole)
		v1.DELETE("/admin/role/:uid", h.removeAdminRole)
		v1.PUT("/admin/settings", h.updateSettings)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), identityFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), identityFromContext(c), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), identityFromContext(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// createOrder handles shop order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), identityFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.orders.GetOrder(c.Request.Context(), identityFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

type updateOrderStatusRequest struct {
	Status       string `json:"status"`
	UPIReference string `json:"upi_reference"`
}

// updateOrderStatus handles admin order status transitions
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), identityFromContext(c),
		c.Param("id"), req.Status, req.UPIReference)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": order.ID,
		"status":   order.Status,
	})
}

// createPaymentOrder handles donation intents
func (h *Handler) createPaymentOrder(c *gin.Context) {
	var req service.CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	resp, err := h.donations.CreatePaymentOrder(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// verifyPayment handles the client-callback confirmation path
func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	resp, err := h.donations.VerifyPayment(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// recordDirectDonation handles the hosted-checkout embedding flow
func (h *Handler) recordDirectDonation(c *gin.Context) {
	var req service.RecordDirectDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	resp, err := h.donations.RecordDirectDonation(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listDonations(c *gin.Context) {
	donations, err := h.donations.ListDonations(c.Request.Context(), identityFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"donations": donations})
}

func (h *Handler) getDonation(c *gin.Context) {
	donation, err := h.donations.GetDonation(c.Request.Context(), identityFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, donation)
}

// setAdminRole handles admin role grants and the one-time bootstrap
func (h *Handler) setAdminRole(c *gin.Context) {
	var req service.SetAdminRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	resp, err := h.admin.SetAdminRole(c.Request.Context(), identityFromContext(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) removeAdminRole(c *gin.Context) {
	if err := h.admin.RemoveAdminRole(c.Request.Context(), identityFromContext(c), c.Param("uid")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) updateSettings(c *gin.Context) {
	var settings models.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		writeError(c, apperr.New(apperr.InvalidArgument, "invalid request body"))
		return
	}

	if err := h.catalog.UpdateSettings(c.Request.Context(), identityFromContext(c), &settings); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
