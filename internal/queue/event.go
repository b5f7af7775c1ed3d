package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventType 引擎对外发布的事件类型。
type EventType string

const (
	EventAuctionActivated EventType = "auction_activated"
	EventLotUpdated       EventType = "lot_updated"
	EventOutbid           EventType = "outbid"
	EventWon              EventType = "won"
	EventChargeRequested  EventType = "charge_requested"
)

// Event 是写入 outbox stream 与 Kafka 的统一事件信封。
// 不同类型只填自己关心的字段，由 Validate 兜底。
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	AuctionID uint  `json:"auction_id,omitempty"`
	LotID     uint  `json:"lot_id,omitempty"`
	UserID    int64 `json:"user_id,omitempty"`
	InvoiceID uint  `json:"invoice_id,omitempty"`
	Amount    int64 `json:"amount,omitempty"`
	LotCount  int   `json:"lot_count,omitempty"`

	// LotUpdated 专用
	LotStatus     string     `json:"lot_status,omitempty"`
	CurrentBid    *int64     `json:"current_bid,omitempty"`
	BidCount      int        `json:"bid_count,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	ExtendedCount int        `json:"extended_count,omitempty"`
}

func newEvent(t EventType, at time.Time) Event {
	return Event{ID: uuid.New().String(), Type: t, OccurredAt: at.UTC()}
}

// AuctionActivated 拍卖会上线。
func AuctionActivated(at time.Time, auctionID uint, lotCount int) Event {
	e := newEvent(EventAuctionActivated, at)
	e.AuctionID = auctionID
	e.LotCount = lotCount
	return e
}

// LotSnapshot 是 LotUpdated 携带的 lot 公开状态。
type LotSnapshot struct {
	LotID         uint
	AuctionID     uint
	Status        string
	CurrentBid    *int64
	BidCount      int
	EndsAt        *time.Time
	ExtendedCount int
}

// LotUpdated 每次成功出价和每次结算都会发布。
func LotUpdated(at time.Time, s LotSnapshot) Event {
	e := newEvent(EventLotUpdated, at)
	e.LotID = s.LotID
	e.AuctionID = s.AuctionID
	e.LotStatus = s.Status
	e.CurrentBid = s.CurrentBid
	e.BidCount = s.BidCount
	e.EndsAt = s.EndsAt
	e.ExtendedCount = s.ExtendedCount
	return e
}

// Outbid 通知原领先者被超越。
func Outbid(at time.Time, userID int64, lotID uint) Event {
	e := newEvent(EventOutbid, at)
	e.UserID = userID
	e.LotID = lotID
	return e
}

// Won 通知中标用户账单已生成。
func Won(at time.Time, userID int64, invoiceID uint) Event {
	e := newEvent(EventWon, at)
	e.UserID = userID
	e.InvoiceID = invoiceID
	return e
}

// ChargeRequested 交给外部支付服务扣款。
func ChargeRequested(at time.Time, invoiceID uint, amount int64) Event {
	e := newEvent(EventChargeRequested, at)
	e.InvoiceID = invoiceID
	e.Amount = amount
	return e
}

// Key 作为 Kafka 分区 key：同一 lot / 同一账单的事件落在同一分区，保证顺序。
func (e Event) Key() string {
	switch e.Type {
	case EventLotUpdated, EventOutbid:
		return "lot:" + strconv.FormatUint(uint64(e.LotID), 10)
	case EventWon, EventChargeRequested:
		return "invoice:" + strconv.FormatUint(uint64(e.InvoiceID), 10)
	case EventAuctionActivated:
		return "auction:" + strconv.FormatUint(uint64(e.AuctionID), 10)
	default:
		return e.ID
	}
}

// Validate 做最小字段校验，防止 relay 转发脏消息。
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch e.Type {
	case EventAuctionActivated:
		if e.AuctionID == 0 {
			return fmt.Errorf("auction_id is required")
		}
		if e.LotCount <= 0 {
			return fmt.Errorf("lot_count must be > 0")
		}
	case EventLotUpdated:
		if e.LotID == 0 {
			return fmt.Errorf("lot_id is required")
		}
		if e.LotStatus == "" {
			return fmt.Errorf("lot_status is required")
		}
	case EventOutbid:
		if e.LotID == 0 {
			return fmt.Errorf("lot_id is required")
		}
		if e.UserID <= 0 {
			return fmt.Errorf("user_id is required")
		}
	case EventWon:
		if e.InvoiceID == 0 {
			return fmt.Errorf("invoice_id is required")
		}
		if e.UserID <= 0 {
			return fmt.Errorf("user_id is required")
		}
	case EventChargeRequested:
		if e.InvoiceID == 0 {
			return fmt.Errorf("invoice_id is required")
		}
		if e.Amount < 0 {
			return fmt.Errorf("amount must be >= 0")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
