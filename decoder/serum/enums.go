package serum

import "github.com/rexbrahh/ix-decoder/decoder/common"

// All three enums travel as u32 little-endian words.

type Side uint32

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

func parseSide(v uint32) (Side, error) {
	if v > uint32(SideAsk) {
		return 0, common.Payloadf("invalid side %d", v)
	}
	return Side(v), nil
}

type OrderType uint32

const (
	OrderTypeLimit OrderType = iota
	OrderTypeImmediateOrCancel
	OrderTypePostOnly
)

func (o OrderType) String() string {
	switch o {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeImmediateOrCancel:
		return "immediateOrCancel"
	case OrderTypePostOnly:
		return "postOnly"
	default:
		return "unknown"
	}
}

func parseOrderType(v uint32) (OrderType, error) {
	if v > uint32(OrderTypePostOnly) {
		return 0, common.Payloadf("invalid order type %d", v)
	}
	return OrderType(v), nil
}

type SelfTradeBehavior uint32

const (
	SelfTradeDecrementTake SelfTradeBehavior = iota
	SelfTradeCancelProvide
	SelfTradeAbortTransaction
)

func (b SelfTradeBehavior) String() string {
	switch b {
	case SelfTradeDecrementTake:
		return "decrementTake"
	case SelfTradeCancelProvide:
		return "cancelProvide"
	case SelfTradeAbortTransaction:
		return "abortTransaction"
	default:
		return "unknown"
	}
}

func parseSelfTradeBehavior(v uint32) (SelfTradeBehavior, error) {
	if v > uint32(SelfTradeAbortTransaction) {
		return 0, common.Payloadf("invalid self trade behavior %d", v)
	}
	return SelfTradeBehavior(v), nil
}
