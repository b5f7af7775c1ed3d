package engine

import (
	"errors"
	"fmt"
)

// 校验类错误同步返回给调用方，引擎不重试。
var (
	ErrLotNotFound     = errors.New("lot not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrLotClosed       = errors.New("lot is closed for bidding")
	ErrBidTooLow       = errors.New("bid is below the minimum")
	ErrAlreadyWinning  = errors.New("already the winning bidder")
	ErrNoPaymentMethod = errors.New("no payment method on file")
	ErrInvalidBid      = errors.New("invalid bid")

	ErrAuctionNotActivatable = errors.New("auction is already live or ended")
	ErrAuctionHasNoLots      = errors.New("auction has no lots")
	ErrAuctionEndInPast      = errors.New("auction end time is not in the future")

	ErrInvalidLotState = errors.New("operation not allowed in current lot state")
)

// BidTooLowError 携带本次需要达到的最低上限。
type BidTooLowError struct {
	Minimum int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s of %d", ErrBidTooLow, e.Minimum)
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }
