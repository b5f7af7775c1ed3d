package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"timed_auction/internal/engine"
	"timed_auction/internal/model"
	rediskey "timed_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// placeBid 出价入口。amount 是本次出价，max_bid 是代理上限，缺省等于 amount。
// 价格计算、领先者切换、防狙击延时都在引擎的同一个事务里完成，这里只做参数解析。
func placeBid(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotID, ok := paramID(c, "id", "拍品ID无效")
		if !ok {
			return
		}
		var req struct {
			UserID int64 `json:"user_id" binding:"required,min=1"`
			Amount int64 `json:"amount" binding:"required,min=1"`
			MaxBid int64 `json:"max_bid" binding:"omitempty,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.MaxBid == 0 {
			req.MaxBid = req.Amount
		}

		res, err := e.PlaceBid(c.Request.Context(), engine.BidRequest{
			LotID:  lotID,
			UserID: req.UserID,
			Amount: req.Amount,
			MaxBid: req.MaxBid,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"status":          res.Status,
				"bid_id":          res.BidID,
				"current_price":   res.CurrentPrice,
				"winning_user_id": res.WinningUserID,
				"is_winning":      res.IsCallerWinning,
				"ends_at":         res.NewEndsAt,
				"extended":        res.Extended,
				"bid_count":       res.BidCount,
				"extended_count":  res.ExtendedCount,
			},
		})
	}
}

func getLot(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotID, ok := paramID(c, "id", "拍品ID无效")
		if !ok {
			return
		}
		lot, err := loadLot(c.Request.Context(), db, lotID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": lot})
	}
}

// getLotState 优先读 Redis 快照，未命中或 Redis 出错时回源数据库。
func getLotState(db *gorm.DB, rdb rd.Cmdable, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotID, ok := paramID(c, "id", "拍品ID无效")
		if !ok {
			return
		}
		if rdb != nil {
			s, found, err := rediskey.GetLotState(c.Request.Context(), rdb, lotID)
			if err != nil {
				logger.Warn("read lot state failed", slog.Uint64("lot_id", uint64(lotID)), slog.Any("error", err))
			}
			if found {
				c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
					"lot_id":         lotID,
					"status":         s.Status,
					"current_bid":    s.CurrentBid,
					"bid_count":      s.BidCount,
					"ends_at":        s.EndsAt,
					"extended_count": s.ExtendedCount,
					"source":         "cache",
				}})
				return
			}
		}

		lot, err := loadLot(c.Request.Context(), db, lotID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"lot_id":         lot.ID,
			"status":         lot.Status,
			"current_bid":    lot.CurrentBid,
			"bid_count":      lot.BidCount,
			"ends_at":        lot.EndsAt,
			"extended_count": lot.ExtendedCount,
			"source":         "db",
		}})
	}
}

// listBids 出价历史，新的在前；max_bid 不对外。
func listBids(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotID, ok := paramID(c, "id", "拍品ID无效")
		if !ok {
			return
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 200 {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "limit 必须在 1 到 200 之间"})
				return
			}
			limit = n
		}
		if _, err := loadLot(c.Request.Context(), db, lotID); err != nil {
			writeError(c, err)
			return
		}
		var list []model.Bid
		if err := db.WithContext(c.Request.Context()).
			Where("lot_id = ?", lotID).
			Order("id DESC").
			Limit(limit).
			Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// settleLot 管理员对单个 lot 的收拍类操作，共用同一个响应格式。
func settleLot(op func(context.Context, uint) (engine.SettlementOutcome, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		lotID, ok := paramID(c, "id", "拍品ID无效")
		if !ok {
			return
		}
		out, err := op(c.Request.Context(), lotID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"lot_id":            out.LotID,
				"status":            out.Status,
				"changed":           out.Changed,
				"winner_id":         out.WinnerID,
				"hammer_price":      out.HammerPrice,
				"auction_finalized": out.AuctionFinalized,
				"invoices_created":  out.InvoicesCreated,
			},
		})
	}
}

func loadLot(ctx context.Context, db *gorm.DB, lotID uint) (model.Lot, error) {
	var lot model.Lot
	if err := db.WithContext(ctx).First(&lot, lotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Lot{}, engine.ErrLotNotFound
		}
		return model.Lot{}, err
	}
	return lot, nil
}
