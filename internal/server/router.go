package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/masetio/KasirPOP/internal/auth"
	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/sync"
	"github.com/masetio/KasirPOP/internal/users"
)

const sessionContextKey = "kasirpop_session"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingStores        = errors.New("entity store dependencies required")
	errMissingSyncEngine    = errors.New("sync engine dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates session tokens.
type TokenManager interface {
	IssueToken(userID, username, role string) (string, int64, error)
	ValidateToken(token string) (auth.Session, error)
}

// Syncer runs sync passes on demand.
type Syncer interface {
	SyncAll(ctx context.Context) sync.SyncReport
	LastSyncTime(ctx context.Context) (int64, error)
}

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	TokenManager TokenManager
	Users        *users.Store
	Catalog      *catalog.Store
	Sales        *sales.Store
	Settings     *settings.Store
	Sync         Syncer
	Logger       *zap.Logger
}

// NewHTTPHandler wires the POS API routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil || deps.Catalog == nil || deps.Sales == nil || deps.Settings == nil {
		return nil, errMissingStores
	}
	if deps.Sync == nil {
		return nil, errMissingSyncEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		users:    deps.Users,
		catalog:  deps.Catalog,
		sales:    deps.Sales,
		settings: deps.Settings,
		sync:     deps.Sync,
		logger:   logger,
	}

	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	{
		protected.GET("/products", handler.handleListProducts)
		protected.GET("/products/barcode/:barcode", handler.handleProductByBarcode)
		protected.GET("/products/:code", handler.handleProductByCode)

		protected.GET("/stock/movements", handler.handleListMovements)

		protected.POST("/transactions", handler.handleCheckout)
		protected.GET("/transactions", handler.handleListTransactions)
		protected.GET("/transactions/unpaid", handler.handleUnpaidTransactions)
		protected.GET("/transactions/:id", handler.handleTransactionDetail)
		protected.POST("/transactions/:id/pay", handler.handleMarkPaid)

		protected.GET("/reports/daily", handler.handleDailyReport)
		protected.GET("/reports/unpaid", handler.handleUnpaidReport)

		protected.GET("/settings", handler.handleListSettings)

		protected.POST("/sync", handler.handleSync)
		protected.GET("/sync/status", handler.handleSyncStatus)
	}

	admin := protected.Group("/")
	admin.Use(handler.requireAdmin)
	{
		admin.POST("/products", handler.handleSaveProduct)
		admin.DELETE("/products/:code", handler.handleDeleteProduct)
		admin.POST("/stock/movements", handler.handleAppendMovement)
		admin.PUT("/settings/:key", handler.handlePutSetting)
		admin.GET("/users", handler.handleListUsers)
		admin.POST("/users", handler.handleCreateUser)
		admin.PATCH("/users/:id/active", handler.handleSetUserActive)
	}

	return router, nil
}

type httpHandler struct {
	tokens   TokenManager
	users    *users.Store
	catalog  *catalog.Store
	sales    *sales.Store
	settings *settings.Store
	sync     Syncer
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	session, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	session := h.session(c)
	if session.Role != string(users.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_only"})
		return
	}
	c.Next()
}

func (h *httpHandler) session(c *gin.Context) auth.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return auth.Session{}
	}
	session, ok := value.(auth.Session)
	if !ok {
		return auth.Session{}
	}
	return session
}

type loginRequestPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginUserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type loginResponsePayload struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int64            `json:"expires_in"`
	TokenType   string           `json:"token_type"`
	User        loginUserPayload `json:"user"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrUserInactive) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("login lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(account.ID, account.Username, string(account.Role))
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User: loginUserPayload{
			ID:       account.ID,
			Username: account.Username,
			FullName: account.FullName,
			Role:     string(account.Role),
		},
	})
}

func (h *httpHandler) handleListProducts(c *gin.Context) {
	ctx := c.Request.Context()
	if term := c.Query("q"); term != "" {
		matches, err := h.catalog.SearchProducts(ctx, term)
		if err != nil {
			h.fail(c, "product search failed", err)
			return
		}
		c.JSON(http.StatusOK, matches)
		return
	}
	all, err := h.catalog.ListProducts(ctx, c.Query("category"))
	if err != nil {
		h.fail(c, "product list failed", err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *httpHandler) handleProductByCode(c *gin.Context) {
	product, err := h.catalog.ProductByCode(c.Request.Context(), c.Param("code"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	if err != nil {
		h.fail(c, "product lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *httpHandler) handleProductByBarcode(c *gin.Context) {
	product, err := h.catalog.ProductByBarcode(c.Request.Context(), c.Param("barcode"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	if err != nil {
		h.fail(c, "barcode lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type productPayload struct {
	Code      string  `json:"code" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Unit      string  `json:"unit" binding:"required"`
	SellPrice float64 `json:"sell_price"`
	CostPrice float64 `json:"cost_price"`
	Barcode   *string `json:"barcode"`
	Category  string  `json:"category"`
}

func (h *httpHandler) handleSaveProduct(c *gin.Context) {
	var request productPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	existing, err := h.catalog.ProductByCode(c.Request.Context(), request.Code)
	if err != nil && !errors.Is(err, catalog.ErrProductNotFound) {
		h.fail(c, "product lookup failed", err)
		return
	}
	product := catalog.Product{
		Code:            request.Code,
		Name:            request.Name,
		Unit:            request.Unit,
		SellPrice:       request.SellPrice,
		CostPrice:       request.CostPrice,
		Barcode:         request.Barcode,
		Category:        request.Category,
		Stock:           existing.Stock,
		CreatedAtMillis: existing.CreatedAtMillis,
	}
	saved, err := h.catalog.SaveProduct(c.Request.Context(), product)
	if err != nil {
		h.fail(c, "product save failed", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *httpHandler) handleDeleteProduct(c *gin.Context) {
	err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("code"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	if err != nil {
		h.fail(c, "product delete failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type movementPayload struct {
	ProductCode string   `json:"product_code" binding:"required"`
	Type        string   `json:"type" binding:"required"`
	Quantity    int      `json:"quantity" binding:"required"`
	CostPrice   *float64 `json:"cost_price"`
	Note        *string  `json:"note"`
}

func (h *httpHandler) handleAppendMovement(c *gin.Context) {
	var request movementPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	movementType, err := catalog.ParseMovementType(request.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_movement_type"})
		return
	}
	movement := catalog.StockMovement{
		ProductCode: request.ProductCode,
		Type:        movementType,
		Quantity:    request.Quantity,
		CostPrice:   request.CostPrice,
		Note:        request.Note,
		CreatedBy:   h.session(c).UserID,
	}
	recorded, err := h.catalog.AppendMovement(c.Request.Context(), movement)
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	if errors.Is(err, catalog.ErrInvalidQuantity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
		return
	}
	if err != nil {
		h.fail(c, "stock movement failed", err)
		return
	}
	c.JSON(http.StatusCreated, recorded)
}

func (h *httpHandler) handleListMovements(c *gin.Context) {
	code := c.Query("product")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_query_required"})
		return
	}
	ledger, err := h.catalog.MovementsForProduct(c.Request.Context(), code)
	if err != nil {
		h.fail(c, "movement list failed", err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

type checkoutLinePayload struct {
	ProductCode string `json:"product_code" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
}

type checkoutPayload struct {
	PaymentMethod string                `json:"payment_method" binding:"required"`
	CashReceived  *float64              `json:"cash_received"`
	CustomerName  *string               `json:"customer_name"`
	Note          *string               `json:"note"`
	Items         []checkoutLinePayload `json:"items" binding:"required"`
}

func (h *httpHandler) handleCheckout(c *gin.Context) {
	var request checkoutPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	method, err := sales.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payment_method"})
		return
	}

	session := h.session(c)
	lines := make([]sales.CheckoutLine, 0, len(request.Items))
	for _, item := range request.Items {
		lines = append(lines, sales.CheckoutLine{ProductCode: item.ProductCode, Quantity: item.Quantity})
	}

	transaction, err := h.sales.Checkout(c.Request.Context(), sales.CheckoutRequest{
		CashierID:     session.UserID,
		CashierName:   session.Username,
		PaymentMethod: method,
		CashReceived:  request.CashReceived,
		CustomerName:  request.CustomerName,
		Note:          request.Note,
		Lines:         lines,
	})
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	if errors.Is(err, sales.ErrEmptyCart) || errors.Is(err, catalog.ErrInvalidQuantity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if errors.Is(err, sales.ErrInsufficientStock) {
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock"})
		return
	}
	if err != nil {
		h.fail(c, "checkout failed", err)
		return
	}
	c.JSON(http.StatusCreated, transaction)
}

func (h *httpHandler) handleListTransactions(c *gin.Context) {
	now := time.Now()
	from := parseMillisQuery(c, "from", startOfDay(now).UnixMilli())
	to := parseMillisQuery(c, "to", now.UnixMilli())

	matches, err := h.sales.ByDateRange(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, "transaction list failed", err)
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (h *httpHandler) handleUnpaidTransactions(c *gin.Context) {
	matches, err := h.sales.Unpaid(c.Request.Context())
	if err != nil {
		h.fail(c, "unpaid list failed", err)
		return
	}
	c.JSON(http.StatusOK, matches)
}

type transactionDetailPayload struct {
	Transaction sales.Transaction       `json:"transaction"`
	Items       []sales.TransactionItem `json:"items"`
}

func (h *httpHandler) handleTransactionDetail(c *gin.Context) {
	ctx := c.Request.Context()
	transaction, err := h.sales.ByID(ctx, c.Param("id"))
	if errors.Is(err, sales.ErrTransactionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found"})
		return
	}
	if err != nil {
		h.fail(c, "transaction lookup failed", err)
		return
	}
	items, err := h.sales.ItemsOf(ctx, transaction.ID)
	if err != nil {
		h.fail(c, "transaction items lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, transactionDetailPayload{Transaction: transaction, Items: items})
}

func (h *httpHandler) handleMarkPaid(c *gin.Context) {
	err := h.sales.MarkPaid(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sales.ErrTransactionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found"})
		return
	}
	if errors.Is(err, sales.ErrAlreadyPaid) {
		c.JSON(http.StatusConflict, gin.H{"error": "already_paid"})
		return
	}
	if err != nil {
		h.fail(c, "mark paid failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDailyReport(c *gin.Context) {
	now := time.Now()
	from := parseMillisQuery(c, "from", startOfDay(now).UnixMilli())
	to := parseMillisQuery(c, "to", now.UnixMilli())

	summary, err := h.sales.Summarize(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, "daily report failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleUnpaidReport(c *gin.Context) {
	summary, err := h.sales.SummarizeUnpaid(c.Request.Context())
	if err != nil {
		h.fail(c, "unpaid report failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleListSettings(c *gin.Context) {
	all, err := h.settings.All(c.Request.Context())
	if err != nil {
		h.fail(c, "settings list failed", err)
		return
	}
	c.JSON(http.StatusOK, all)
}

type settingPayload struct {
	Value string `json:"value"`
}

func (h *httpHandler) handlePutSetting(c *gin.Context) {
	var request settingPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.settings.Put(c.Request.Context(), c.Param("key"), request.Value); err != nil {
		h.fail(c, "setting write failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	all, err := h.users.List(c.Request.Context())
	if err != nil {
		h.fail(c, "user list failed", err)
		return
	}
	response := make([]userPayload, 0, len(all))
	for _, account := range all {
		response = append(response, userPayload{
			ID:       account.ID,
			Username: account.Username,
			FullName: account.FullName,
			Role:     string(account.Role),
			IsActive: account.IsActive,
		})
	}
	c.JSON(http.StatusOK, response)
}

type createUserPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
	FullName string `json:"full_name"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	role, err := users.ParseRole(request.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
		return
	}
	account, err := h.users.Create(c.Request.Context(), request.Username, request.Password, role, request.FullName)
	if err != nil {
		h.fail(c, "user create failed", err)
		return
	}
	c.JSON(http.StatusCreated, userPayload{
		ID:       account.ID,
		Username: account.Username,
		FullName: account.FullName,
		Role:     string(account.Role),
		IsActive: account.IsActive,
	})
}

type setActivePayload struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *httpHandler) handleSetUserActive(c *gin.Context) {
	var request setActivePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.users.SetActive(c.Request.Context(), c.Param("id"), *request.IsActive)
	if errors.Is(err, users.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
		return
	}
	if err != nil {
		h.fail(c, "user update failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSync(c *gin.Context) {
	report := h.sync.SyncAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":          report.Success,
		"message":          report.Message,
		"total_uploaded":   report.TotalUploaded(),
		"total_downloaded": report.TotalDownloaded(),
		"total_errors":     report.TotalErrors(),
		"entities": gin.H{
			"users":           report.Users,
			"products":        report.Products,
			"transactions":    report.Transactions,
			"stock_movements": report.StockMovements,
			"settings":        report.Settings,
		},
		"errors": report.AllErrors(),
	})
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	lastSync, err := h.sync.LastSyncTime(c.Request.Context())
	if err != nil {
		h.fail(c, "sync status lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_sync_time": lastSync})
}

func (h *httpHandler) fail(c *gin.Context, message string, err error) {
	h.logger.Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

// startOfDay returns midnight of t's calendar day in t's own zone. Truncate
// would round in UTC and shift the default report window for shops east or
// west of it.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseMillisQuery(c *gin.Context, name string, fallback int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
