package serum

import (
	"fmt"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

// Pack encodes a market instruction with the version byte and discriminant
// prefix that Unpack expects.
func Pack(ix Instruction) ([]byte, error) {
	if ix == nil {
		return nil, common.Payloadf("nil instruction")
	}
	w := common.NewWriter().U8(0).U32(uint32(ix.Discriminant()))

	switch v := ix.(type) {
	case InitializeMarket:
		w.U64(v.CoinLotSize).U64(v.PcLotSize).U16(v.FeeRateBps).U64(v.VaultSignerNonce).U64(v.PcDustThreshold)
	case NewOrderV1:
		if err := firstErr(checkNonZero(v.LimitPrice, v.MaxQty), checkSide(v.Side), checkOrderType(v.OrderType)); err != nil {
			return nil, err
		}
		w.U32(uint32(v.Side)).U64(v.LimitPrice).U64(v.MaxQty).U32(uint32(v.OrderType)).U64(v.ClientID)
	case MatchOrders:
		w.U16(v.Limit)
	case ConsumeEvents:
		w.U16(v.Limit)
	case CancelOrder:
		if err := checkSide(v.Side); err != nil {
			return nil, err
		}
		w.U32(uint32(v.Side)).U128(v.OrderID)
		for _, word := range v.Owner {
			w.U64(word)
		}
		w.U8(v.OwnerSlot)
	case SettleFunds, DisableMarket, SweepFees, CloseOpenOrders, InitOpenOrders:
	case CancelOrderByClientID:
		w.U64(v.ClientID)
	case NewOrderV2:
		if err := firstErr(checkNonZero(v.LimitPrice, v.MaxQty), checkSide(v.Side), checkOrderType(v.OrderType),
			checkSelfTrade(v.SelfTradeBehavior)); err != nil {
			return nil, err
		}
		w.U32(uint32(v.Side)).U64(v.LimitPrice).U64(v.MaxQty).U32(uint32(v.OrderType)).U64(v.ClientID).
			U32(uint32(v.SelfTradeBehavior))
	case NewOrderV3:
		if err := writeNewOrderV3(w, v); err != nil {
			return nil, err
		}
	case CancelOrderV2:
		if err := checkSide(v.Side); err != nil {
			return nil, err
		}
		w.U32(uint32(v.Side)).U128(v.OrderID)
	case CancelOrderByClientIDV2:
		w.U64(v.ClientID)
	case SendTake:
		if err := firstErr(checkNonZero(v.LimitPrice, v.MaxCoinQty, v.MaxNativePcQtyIncludingFees), checkSide(v.Side)); err != nil {
			return nil, err
		}
		w.U32(uint32(v.Side)).U64(v.LimitPrice).U64(v.MaxCoinQty).U64(v.MaxNativePcQtyIncludingFees).
			U64(v.MinCoinQty).U64(v.MinNativePcQty).U16(v.Limit)
	case Prune:
		w.U16(v.Limit)
	case ConsumeEventsPermissioned:
		w.U16(v.Limit)
	case CancelOrdersByClientIDs:
		for _, id := range v.ClientIDs {
			w.U64(id)
		}
	case ReplaceOrderByClientID:
		if err := writeNewOrderV3(w, v.Order); err != nil {
			return nil, err
		}
	case ReplaceOrdersByClientIDs:
		if len(v.Orders) > maxBatch {
			return nil, common.Payloadf("replace orders: %d orders exceeds %d", len(v.Orders), maxBatch)
		}
		w.U64(uint64(len(v.Orders)))
		for _, order := range v.Orders {
			if err := writeNewOrderV3(w, order); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("pack: unsupported instruction type %T", ix)
	}
	return w.Bytes()
}

func writeNewOrderV3(w *common.Writer, v NewOrderV3) error {
	if err := firstErr(checkNonZero(v.LimitPrice, v.MaxCoinQty, v.MaxNativePcQtyIncludingFees), checkSide(v.Side),
		checkOrderType(v.OrderType), checkSelfTrade(v.SelfTradeBehavior)); err != nil {
		return err
	}
	w.U32(uint32(v.Side)).U64(v.LimitPrice).U64(v.MaxCoinQty).U64(v.MaxNativePcQtyIncludingFees).
		U32(uint32(v.SelfTradeBehavior)).U32(uint32(v.OrderType)).U64(v.ClientOrderID).U16(v.Limit).
		I64(v.MaxTs)
	return nil
}

func checkNonZero(vals ...uint64) error {
	for _, v := range vals {
		if v == 0 {
			return common.Payloadf("price and quantity fields must be non-zero")
		}
	}
	return nil
}

// Enum checks reuse the Unpack parsers so Pack never emits bytes that
// Unpack would reject.

func checkSide(s Side) error {
	_, err := parseSide(uint32(s))
	return err
}

func checkOrderType(o OrderType) error {
	_, err := parseOrderType(uint32(o))
	return err
}

func checkSelfTrade(b SelfTradeBehavior) error {
	_, err := parseSelfTradeBehavior(uint32(b))
	return err
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
