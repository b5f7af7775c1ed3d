package router

import (
	"errors"
	"net/http"
	"strconv"

	"timed_auction/internal/payment"

	"github.com/gin-gonic/gin"
)

// registerPaymentMethod 登记支付方式引用，出价前置条件。
func registerPaymentMethod(p *payment.DBGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "用户ID无效"})
			return
		}
		var req struct {
			Reference string `json:"reference" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		pm, err := p.Register(c.Request.Context(), userID, req.Reference)
		if err != nil {
			if errors.Is(err, payment.ErrEmptyReference) {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "reference 必填"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pm})
	}
}
