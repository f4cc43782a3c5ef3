package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"lottery/internal/faults"
	"lottery/internal/ledger"
	"lottery/internal/models"
	"lottery/internal/services"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/google/uuid"
)

const (
	// WalletHeader carries the caller's address on every identity-bound request.
	WalletHeader    = "X-Wallet-Address"
	RequestIDHeader = "X-Request-ID"

	sessionKey = "session"
)

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	lotteries *services.LotteryService
	anchors   *services.AnchorService
	sessions  *services.SessionRegistry
	health    func() bool
}

// NewHTTPHandler creates a new HTTPHandler. health reports whether the content
// store answers; nil means always healthy.
func NewHTTPHandler(lotteries *services.LotteryService, anchors *services.AnchorService, sessions *services.SessionRegistry, health func() bool) *HTTPHandler {
	return &HTTPHandler{
		lotteries: lotteries,
		anchors:   anchors,
		sessions:  sessions,
		health:    health,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(RequestID())

	router.GET("/healthz", h.Health)
	router.GET("/lotteries", h.ListLotteries)
	router.GET("/lotteries/:id", h.GetLottery)
	router.GET("/lotteries/:id/participants", h.GetParticipants)
	router.GET("/tx/:handle", h.GetWriteStatus)

	wallet := router.Group("/")
	wallet.Use(h.WalletMiddleware())
	wallet.POST("/lotteries", h.CreateLottery)
	wallet.POST("/lotteries/:id/tickets", h.BuyTickets)
	wallet.POST("/lotteries/:id/close", h.CloseLottery)
	wallet.PUT("/lotteries/:id/commission", h.SetCommission)
	wallet.GET("/lotteries/:id/tickets/me", h.GetMyTickets)
	wallet.GET("/me", h.GetProfile)
	wallet.POST("/me/withdraw", h.Withdraw)
	wallet.POST("/anchors/:kind", h.UploadAnchor)
	wallet.POST("/anchors/:kind/link", h.LinkAnchor)
	wallet.GET("/anchors/:kind", h.GetAnchor)
}

// RequestID tags every request and its response with an id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// WalletMiddleware resolves the caller's session from the wallet header.
func (h *HTTPHandler) WalletMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := models.ParseIdentity(c.GetHeader(WalletHeader))
		if err != nil {
			h.fail(c, faults.New(faults.KindAuth, "resolve wallet", faults.ErrNoAccountGranted))
			c.Abort()
			return
		}
		c.Set(sessionKey, h.sessions.GetSession(who))
		c.Next()
	}
}

func currentSession(c *gin.Context) *services.UserSession {
	return c.MustGet(sessionKey).(*services.UserSession)
}

var kindStatus = map[faults.Kind]int{
	faults.KindValidation:          http.StatusBadRequest,
	faults.KindNetwork:             http.StatusPreconditionFailed,
	faults.KindAuth:                http.StatusUnauthorized,
	faults.KindStore:               http.StatusBadGateway,
	faults.KindSubmission:          http.StatusBadGateway,
	faults.KindConfirmationTimeout: http.StatusGatewayTimeout,
	faults.KindRejected:            http.StatusUnprocessableEntity,
	faults.KindCache:               http.StatusServiceUnavailable,
	faults.KindConflict:            http.StatusConflict,
}

func statusOf(err error) int {
	if errors.Is(err, faults.ErrLotteryNotFound) || errors.Is(err, ledger.ErrNotFound) {
		return http.StatusNotFound
	}
	if status, ok := kindStatus[faults.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON body carrying its category and, when known, the
// uploaded content id and the pending transaction handle.
func (h *HTTPHandler) fail(c *gin.Context, err error) {
	body := gin.H{
		"error":    faults.Message(err),
		"category": faults.KindOf(err).String(),
	}
	if fe, ok := faults.As(err); ok {
		if fe.ContentID != "" {
			body["cid"] = fe.ContentID
		}
		if fe.Handle != (ledger.Handle{}) {
			body["handle"] = fe.Handle.Hex()
		}
	}
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Warningf("%s %s [%s]: %v", c.Request.Method, c.FullPath(), c.GetString(RequestIDHeader), err)
	} else {
		logger.Infof("%s %s [%s]: %v", c.Request.Method, c.FullPath(), c.GetString(RequestIDHeader), err)
	}
	c.JSON(status, body)
}

func lotteryID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, faults.Validation("parse lottery id", "invalid lottery id %q", c.Param("id"))
	}
	return id, nil
}

// Health reports whether the content store is reachable.
func (h *HTTPHandler) Health(c *gin.Context) {
	if h.health != nil && !h.health() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
}

// ListLotteries lists all, active, or one creator's lotteries.
func (h *HTTPHandler) ListLotteries(c *gin.Context) {
	var (
		list []models.Lottery
		err  error
	)
	switch creator, filter := c.Query("creator"), c.DefaultQuery("filter", "all"); {
	case creator != "":
		who, perr := models.ParseIdentity(creator)
		if perr != nil {
			h.fail(c, faults.Wrap(faults.KindValidation, "list lotteries", perr))
			return
		}
		list, err = h.lotteries.ListByCreator(c.Request.Context(), who)
	case filter == "active":
		list, err = h.lotteries.ListActive(c.Request.Context())
	case filter == "all":
		list, err = h.lotteries.ListAll(c.Request.Context())
	default:
		err = faults.Validation("list lotteries", "unknown filter %q", filter)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]lotteryView, 0, len(list))
	now := time.Now()
	for _, l := range list {
		views = append(views, newLotteryView(l, now))
	}
	c.JSON(http.StatusOK, views)
}

// GetLottery returns a fresh snapshot of one lottery.
func (h *HTTPHandler) GetLottery(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	l, err := h.lotteries.GetInfo(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newLotteryView(l, time.Now()))
}

// GetParticipants lists the distinct ticket holders of a lottery.
func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	participants, err := h.lotteries.GetParticipants(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		out = append(out, p.Hex())
	}
	c.JSON(http.StatusOK, gin.H{"lotteryId": id, "participants": out})
}

type createRequest struct {
	Name                  string    `json:"name"`
	TicketPrice           string    `json:"ticketPrice"`
	MaxTickets            uint64    `json:"maxTickets"`
	EndTime               time.Time `json:"endTime"`
	CommissionBasisPoints int       `json:"commissionBasisPoints"`
	Description           string    `json:"description"`
}

// CreateLottery opens a new lottery owned by the caller.
func (h *HTTPHandler) CreateLottery(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, "create lottery", err))
		return
	}
	price, ok := new(big.Int).SetString(req.TicketPrice, 10)
	if !ok {
		h.fail(c, faults.Validation("create lottery", "ticket price %q is not an integer amount in wei", req.TicketPrice))
		return
	}

	us := currentSession(c)
	id, err := h.lotteries.Create(c.Request.Context(), us.Session, services.CreateParams{
		Name:                  req.Name,
		TicketPrice:           price,
		MaxTickets:            req.MaxTickets,
		EndTime:               req.EndTime,
		CommissionBasisPoints: req.CommissionBasisPoints,
		Description:           []byte(req.Description),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if l, ok := h.lotteries.Cached(id); ok {
		c.JSON(http.StatusCreated, newLotteryView(l, time.Now()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// BuyTickets buys tickets for the caller.
func (h *HTTPHandler) BuyTickets(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req struct {
		Quantity int64 `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, "buy tickets", err))
		return
	}

	us := currentSession(c)
	if err := h.lotteries.BuyTickets(c.Request.Context(), us.Session, id, req.Quantity); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, id)
}

// CloseLottery closes a lottery and reports its winner.
func (h *HTTPHandler) CloseLottery(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	us := currentSession(c)
	if err := h.lotteries.Close(c.Request.Context(), us.Session, id); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, id)
}

// SetCommission changes a lottery's commission.
func (h *HTTPHandler) SetCommission(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req struct {
		BasisPoints int `json:"basisPoints"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, faults.Wrap(faults.KindValidation, "set commission", err))
		return
	}

	us := currentSession(c)
	if err := h.lotteries.SetCommission(c.Request.Context(), us.Session, id, req.BasisPoints); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, id)
}

// respondLottery answers a confirmed write with the refreshed snapshot. The
// write has succeeded even if no snapshot is cached.
func (h *HTTPHandler) respondLottery(c *gin.Context, id uint64) {
	if l, ok := h.lotteries.Cached(id); ok {
		c.JSON(http.StatusOK, newLotteryView(l, time.Now()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// GetMyTickets returns the caller's ticket count in a lottery.
func (h *HTTPHandler) GetMyTickets(c *gin.Context) {
	id, err := lotteryID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	who, err := currentSession(c).Session.EnsureIdentity(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	n, err := h.lotteries.GetMyTickets(c.Request.Context(), id, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lotteryId": id, "tickets": n})
}

// GetProfile returns the caller's balance, counters and ticket holdings.
func (h *HTTPHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	who, err := currentSession(c).Session.EnsureIdentity(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	pending, err := h.lotteries.GetPendingWithdrawal(ctx, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.lotteries.GetParticipantStats(ctx, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	holdings, err := h.lotteries.MyHoldings(ctx, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	if holdings == nil {
		holdings = []models.TicketHolding{}
	}
	c.JSON(http.StatusOK, gin.H{
		"address":              who.Hex(),
		"pendingWithdrawal":    pending.String(),
		"pendingWithdrawalEth": models.FormatUnits(pending, etherDecimals),
		"stats":                stats,
		"holdings":             holdings,
	})
}

// Withdraw claims the caller's pending winnings.
func (h *HTTPHandler) Withdraw(c *gin.Context) {
	amount, err := h.lotteries.Withdraw(c.Request.Context(), currentSession(c).Session)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"withdrawn":    amount.String(),
		"withdrawnEth": models.FormatUnits(amount, etherDecimals),
	})
}

// GetWriteStatus reports whether an accepted write has been confirmed, typically
// one whose confirmation timed out.
func (h *HTTPHandler) GetWriteStatus(c *gin.Context) {
	raw, err := hexutil.Decode(c.Param("handle"))
	if err != nil || len(raw) != len(ledger.Handle{}) {
		h.fail(c, faults.Validation("write status", "invalid handle %q", c.Param("handle")))
		return
	}
	handle := ledger.Handle(raw)

	r, err := h.lotteries.WriteStatus(c.Request.Context(), handle)
	if err != nil {
		h.fail(c, err)
		return
	}
	if r == nil {
		c.JSON(http.StatusOK, gin.H{"handle": handle.Hex(), "status": "pending"})
		return
	}
	body := gin.H{"handle": handle.Hex(), "status": "succeeded", "block": r.Block}
	if !r.Succeeded() {
		body["status"] = "reverted"
		body["reason"] = r.Reason
	}
	c.JSON(http.StatusOK, body)
}
