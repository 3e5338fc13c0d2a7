package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"orderhub/internal/logger"
	"orderhub/internal/models"
)

const recentOrdersLimit = 20

// OrderAPI represents the HTTP surface next to the realtime endpoint
type OrderAPI struct {
	Router *gin.Engine
	Store  OrderReader
	Admin  AdminAuth
}

// OrderReader is the read side of the order store
type OrderReader interface {
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindAll(ctx context.Context, status models.Status, limit int) ([]*models.Order, error)
}

// AdminAuth checks the admin password and the bearer tokens issued for it
type AdminAuth interface {
	CheckPassword(password string) bool
	IssueToken() (string, time.Time, error)
	Verify(token string) error
}

// NewOrderAPI creates the HTTP surface. ws, when non-nil, is mounted at /ws.
func NewOrderAPI(store OrderReader, admin AdminAuth, ws http.Handler) *OrderAPI {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinLogger())

	api := &OrderAPI{
		Router: router,
		Store:  store,
		Admin:  admin,
	}

	api.setupRoutes(ws)
	return api
}

// setupRoutes configures all API endpoints
func (a *OrderAPI) setupRoutes(ws http.Handler) {
	a.Router.GET("/health", a.Health)
	if ws != nil {
		a.Router.GET("/ws", gin.WrapH(ws))
	}

	api := a.Router.Group("/api")
	{
		api.POST("/admin/login", a.Login)
		api.GET("/orders", AuthMiddleware(a.Admin), a.ListOrders)
		api.GET("/orders/:orderId", a.GetOrder)
	}

	a.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})
}

// AuthMiddleware requires a valid admin bearer token
func AuthMiddleware(admin AdminAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authorization header required"})
			return
		}
		if err := admin.Verify(tokenString); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid token"})
			return
		}
		c.Next()
	}
}

func (a *OrderAPI) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Order server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (a *OrderAPI) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request payload"})
		return
	}
	if !a.Admin.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid password"})
		return
	}

	token, exp, err := a.Admin.IssueToken()
	if err != nil {
		logger.Log.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "expiresAt": exp.UTC().Format(time.RFC3339)})
}

func (a *OrderAPI) ListOrders(c *gin.Context) {
	list, err := a.Store.FindAll(c.Request.Context(), models.Status(c.Query("status")), recentOrdersLimit)
	if err != nil {
		logger.Log.Error("list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load orders"})
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "orders": list})
}

func (a *OrderAPI) GetOrder(c *gin.Context) {
	order, err := a.Store.FindByID(c.Request.Context(), c.Param("orderId"))
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
		return
	}
	if err != nil {
		logger.Log.Error("get order", zap.String("order", c.Param("orderId")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}
