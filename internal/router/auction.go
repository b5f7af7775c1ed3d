package router

import (
	"errors"
	"net/http"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errAuctionLocked = errors.New("auction already activated")

// createAuction 创建 draft 拍卖会（含时间窗校验）。
func createAuction(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title                   string          `json:"title" binding:"required"`
			StartsAt                string          `json:"starts_at" binding:"required"`
			EndsAt                  string          `json:"ends_at" binding:"required"`
			BuyersPremiumPercent    decimal.Decimal `json:"buyers_premium_percent"`
			AutoExtendMinutes       int             `json:"auto_extend_minutes" binding:"min=0"`
			LotCloseIntervalSeconds int             `json:"lot_close_interval_seconds" binding:"min=0"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		start, err := time.Parse(time.RFC3339, req.StartsAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "starts_at 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndsAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "ends_at 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(start) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "ends_at 必须晚于 starts_at"})
			return
		}
		if req.BuyersPremiumPercent.IsNegative() || req.BuyersPremiumPercent.GreaterThan(decimal.NewFromInt(100)) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "buyers_premium_percent 必须在 0 到 100 之间"})
			return
		}

		a := &model.Auction{
			Title:                   req.Title,
			Status:                  model.AuctionDraft,
			StartsAt:                start.UTC(),
			EndsAt:                  end.UTC(),
			BuyersPremiumPercent:    req.BuyersPremiumPercent,
			AutoExtendMinutes:       req.AutoExtendMinutes,
			LotCloseIntervalSeconds: req.LotCloseIntervalSeconds,
		}
		if err := db.WithContext(c.Request.Context()).Create(a).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": a})
	}
}

func getAuction(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		var a model.Auction
		if err := db.WithContext(c.Request.Context()).First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(c, engine.ErrAuctionNotFound)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": a})
	}
}

// addLot 上线前添加拍品，同一拍卖会内 lot_number 唯一。
func addLot(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		var req struct {
			LotNumber    int    `json:"lot_number" binding:"required,min=1"`
			Title        string `json:"title" binding:"required"`
			StartingBid  int64  `json:"starting_bid" binding:"required,min=1"`
			ReservePrice *int64 `json:"reserve_price" binding:"omitempty,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		lot := &model.Lot{
			AuctionID:    auctionID,
			LotNumber:    req.LotNumber,
			Title:        req.Title,
			StartingBid:  req.StartingBid,
			ReservePrice: req.ReservePrice,
			Status:       model.LotUpcoming,
		}
		var duplicate bool
		err := db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			var a model.Auction
			if err := tx.First(&a, auctionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return engine.ErrAuctionNotFound
				}
				return err
			}
			if a.Status != model.AuctionDraft && a.Status != model.AuctionPreview {
				return errAuctionLocked
			}
			var n int64
			if err := tx.Model(&model.Lot{}).Where("auction_id = ? AND lot_number = ?", auctionID, req.LotNumber).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				duplicate = true
				return nil
			}
			return tx.Create(lot).Error
		})
		switch {
		case errors.Is(err, errAuctionLocked):
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "拍卖会已上线，不能再添加拍品"})
			return
		case err != nil:
			writeError(c, err)
			return
		case duplicate:
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "lot_number 已存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": lot})
	}
}

func listLots(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		var list []model.Lot
		if err := db.WithContext(c.Request.Context()).
			Where("auction_id = ?", auctionID).
			Order("lot_number ASC").
			Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// listInvoices 拍卖会结束后的账单及明细。
func listInvoices(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		var list []model.Invoice
		if err := db.WithContext(c.Request.Context()).
			Preload("Items").
			Where("auction_id = ?", auctionID).
			Order("user_id ASC").
			Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func previewAuction(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		if err := e.PreviewAuction(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "已进入预展"})
	}
}

// activateAuction 上线并错峰分配每个 lot 的收拍时间。
func activateAuction(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "拍卖会ID无效")
		if !ok {
			return
		}
		res, err := e.ActivateAuction(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"auction_id":       res.AuctionID,
				"lots_initialized": res.LotsInitialized,
				"interval_seconds": res.IntervalSeconds,
				"first_close_at":   res.FirstCloseAt,
				"last_close_at":    res.LastCloseAt,
			},
		})
	}
}
