package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/middleware"
	"timed_auction/internal/payment"
	rediskey "timed_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps 是 HTTP 层需要的全部依赖。RDB 为空时不限流，lot 快照直接读库。
type Deps struct {
	DB       *gorm.DB
	RDB      rd.Cmdable
	Engine   *engine.Engine
	Payments *payment.DBGate
	Logger   *slog.Logger

	AdminToken    string
	BidRateLimit  int
	BidRateWindow time.Duration
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	admin := middleware.AdminToken(d.AdminToken)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Auctions
	r.POST("/api/auctions", createAuction(d.DB))
	r.GET("/api/auctions/:id", getAuction(d.DB))
	r.POST("/api/auctions/:id/lots", addLot(d.DB))
	r.GET("/api/auctions/:id/lots", listLots(d.DB))
	r.GET("/api/auctions/:id/invoices", listInvoices(d.DB))
	r.POST("/api/auctions/:id/preview", admin, previewAuction(d.Engine))
	r.POST("/api/auctions/:id/activate", admin, activateAuction(d.Engine))

	// Lots
	bid := []gin.HandlerFunc{placeBid(d.Engine)}
	if d.RDB != nil {
		bid = append([]gin.HandlerFunc{middleware.BidRateLimit(d.RDB, d.BidRateLimit, d.BidRateWindow, d.Logger)}, bid...)
	}
	r.POST("/api/lots/:id/bids", bid...)
	r.GET("/api/lots/:id", getLot(d.DB))
	r.GET("/api/lots/:id/state", getLotState(d.DB, d.RDB, d.Logger))
	r.GET("/api/lots/:id/bids", listBids(d.DB))

	// Admin overrides
	g := r.Group("/api/admin", admin)
	g.POST("/lots/:id/end", settleLot(d.Engine.EndLotNow))
	g.POST("/lots/:id/release", settleLot(d.Engine.ReleaseToBidder))
	g.POST("/lots/:id/unsold", settleLot(d.Engine.MarkUnsold))
	g.POST("/lots/:id/withdraw", settleLot(d.Engine.WithdrawLot))

	// Users
	r.POST("/api/users/:id/payment_method", registerPaymentMethod(d.Payments))
}

// paramID 解析路径里的 32 位无符号 ID。
func paramID(c *gin.Context, name, msg string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
		return 0, false
	}
	return uint(id), true
}

// writeError 把引擎错误映射为 HTTP 状态码和提示。
func writeError(c *gin.Context, err error) {
	var low *engine.BidTooLowError
	switch {
	case errors.As(err, &low):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "出价上限低于最低加价", "data": gin.H{"minimum": low.Minimum}})
	case errors.Is(err, engine.ErrInvalidBid):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.Is(err, engine.ErrLotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "拍品不存在"})
	case errors.Is(err, engine.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "拍卖会不存在"})
	case errors.Is(err, engine.ErrNoPaymentMethod):
		c.JSON(http.StatusPaymentRequired, gin.H{"code": 402, "msg": "请先绑定支付方式"})
	case errors.Is(err, engine.ErrLotClosed):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "拍品已截拍"})
	case errors.Is(err, engine.ErrAlreadyWinning):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "你已是当前领先者，只能提高上限"})
	case errors.Is(err, engine.ErrAuctionNotActivatable):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "拍卖会状态不允许该操作"})
	case errors.Is(err, engine.ErrInvalidLotState):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "拍品当前状态不允许该操作"})
	case errors.Is(err, engine.ErrAuctionHasNoLots):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "拍卖会没有拍品"})
	case errors.Is(err, engine.ErrAuctionEndInPast):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "拍卖会结束时间必须晚于当前时间"})
	case errors.Is(err, rediskey.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "系统繁忙，请重试"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	}
}
