package serum

import (
	"math"

	"lukechampine.com/uint128"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

const (
	headerLen     = 5 // version byte + u32 discriminant
	newOrderV3Len = 54
	maxBatch      = 8
	// MaxInstructionLen bounds the whole versioned payload.
	MaxInstructionLen = headerLen + 8 + newOrderV3Len*maxBatch
)

// layout is one row of the decode table: a variant is selected by its
// discriminant together with a predicate over the payload length.
type layout struct {
	disc   Discriminant
	accept func(n int) bool
	parse  func(data []byte) (Instruction, error)
}

func exactly(n int) func(int) bool {
	return func(got int) bool { return got == n }
}

// layouts is scanned in order; the first row whose discriminant and length
// predicate both match wins.
var layouts = []layout{
	{DiscInitializeMarket, exactly(34), parseInitializeMarket},
	{DiscNewOrder, exactly(32), parseNewOrderV1},
	{DiscMatchOrders, exactly(2), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return MatchOrders{Limit: r.u16()}, r.err
	}},
	{DiscConsumeEvents, exactly(2), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return ConsumeEvents{Limit: r.u16()}, r.err
	}},
	{DiscCancelOrder, exactly(53), parseCancelOrder},
	{DiscSettleFunds, exactly(0), constant(SettleFunds{})},
	{DiscCancelOrderByClientID, exactly(8), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return CancelOrderByClientID{ClientID: r.u64()}, r.err
	}},
	{DiscDisableMarket, exactly(0), constant(DisableMarket{})},
	{DiscSweepFees, exactly(0), constant(SweepFees{})},
	{DiscNewOrderV2, exactly(36), parseNewOrderV2},
	{DiscNewOrderV3, exactly(46), func(d []byte) (Instruction, error) {
		return parseNewOrderV3(extendMaxTs(d))
	}},
	{DiscNewOrderV3, exactly(newOrderV3Len), func(d []byte) (Instruction, error) {
		return parseNewOrderV3(d)
	}},
	{DiscCancelOrderV2, exactly(20), parseCancelOrderV2},
	{DiscCancelOrderByClientIDV2, exactly(8), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return CancelOrderByClientIDV2{ClientID: r.u64()}, r.err
	}},
	{DiscSendTake, exactly(46), parseSendTake},
	{DiscCloseOpenOrders, exactly(0), constant(CloseOpenOrders{})},
	{DiscInitOpenOrders, exactly(0), constant(InitOpenOrders{})},
	{DiscPrune, exactly(2), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return Prune{Limit: r.u16()}, r.err
	}},
	{DiscConsumeEventsPermissioned, exactly(2), func(d []byte) (Instruction, error) {
		r := reader{buf: d}
		return ConsumeEventsPermissioned{Limit: r.u16()}, r.err
	}},
	{DiscCancelOrdersByClientIDs, func(n int) bool { return n%8 == 0 && n <= 8*maxBatch }, parseCancelOrdersByClientIDs},
	{DiscReplaceOrderByClientID, exactly(newOrderV3Len), func(d []byte) (Instruction, error) {
		order, err := parseNewOrderV3(d)
		if err != nil {
			return nil, err
		}
		return ReplaceOrderByClientID{Order: order.(NewOrderV3)}, nil
	}},
	{DiscReplaceOrdersByClientIDs, func(n int) bool {
		return n%newOrderV3Len == 8 && n <= 8+newOrderV3Len*maxBatch
	}, parseReplaceOrdersByClientIDs},
}

func constant(ix Instruction) func([]byte) (Instruction, error) {
	return func([]byte) (Instruction, error) { return ix, nil }
}

// Unpack decodes a versioned market instruction.
func Unpack(data []byte) (Instruction, error) {
	if len(data) < headerLen || len(data) > MaxInstructionLen {
		return nil, common.Payloadf("instruction length %d outside [%d, %d]", len(data), headerLen, MaxInstructionLen)
	}
	if data[0] != 0 {
		return nil, common.Payloadf("unsupported version %d", data[0])
	}
	raw, payload, err := common.UnpackU32(data[1:])
	if err != nil {
		return nil, err
	}
	disc := Discriminant(raw)

	known := false
	for _, l := range layouts {
		if l.disc != disc {
			continue
		}
		known = true
		if l.accept(len(payload)) {
			return l.parse(payload)
		}
	}
	if known {
		return nil, common.Payloadf("%s: unexpected payload length %d", disc, len(payload))
	}
	return nil, common.Payloadf("unknown market instruction %d", raw)
}

// reader consumes fields in order; the first short read sticks in err.
type reader struct {
	buf []byte
	err error
}

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	var v uint8
	v, r.buf, r.err = common.UnpackU8(r.buf)
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	var v uint16
	v, r.buf, r.err = common.UnpackU16(r.buf)
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	v, r.buf, r.err = common.UnpackU32(r.buf)
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.buf, r.err = common.UnpackU64(r.buf)
	return v
}

func (r *reader) i64() int64 {
	if r.err != nil {
		return 0
	}
	var v int64
	v, r.buf, r.err = common.UnpackI64(r.buf)
	return v
}

func (r *reader) u128() uint128.Uint128 {
	if r.err != nil {
		return uint128.Zero
	}
	var v uint128.Uint128
	v, r.buf, r.err = common.UnpackU128(r.buf)
	return v
}

// nonZero reads a u64 that must not be zero (prices and quantities).
func (r *reader) nonZero(field string) uint64 {
	v := r.u64()
	if r.err == nil && v == 0 {
		r.err = common.Payloadf("%s must be non-zero", field)
	}
	return v
}

func (r *reader) side() Side {
	raw := r.u32()
	if r.err != nil {
		return 0
	}
	s, err := parseSide(raw)
	r.err = err
	return s
}

func (r *reader) orderType() OrderType {
	raw := r.u32()
	if r.err != nil {
		return 0
	}
	o, err := parseOrderType(raw)
	r.err = err
	return o
}

func (r *reader) selfTrade() SelfTradeBehavior {
	raw := r.u32()
	if r.err != nil {
		return 0
	}
	b, err := parseSelfTradeBehavior(raw)
	r.err = err
	return b
}

func parseInitializeMarket(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := InitializeMarket{
		CoinLotSize:      r.u64(),
		PcLotSize:        r.u64(),
		FeeRateBps:       r.u16(),
		VaultSignerNonce: r.u64(),
		PcDustThreshold:  r.u64(),
	}
	return ix, r.err
}

func readNewOrderV1(r *reader) NewOrderV1 {
	return NewOrderV1{
		Side:       r.side(),
		LimitPrice: r.nonZero("limit price"),
		MaxQty:     r.nonZero("max qty"),
		OrderType:  r.orderType(),
		ClientID:   r.u64(),
	}
}

func parseNewOrderV1(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := readNewOrderV1(&r)
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

func parseNewOrderV2(d []byte) (Instruction, error) {
	r := reader{buf: d}
	v1 := readNewOrderV1(&r)
	ix := NewOrderV2{
		Side:       v1.Side,
		LimitPrice: v1.LimitPrice,
		MaxQty:     v1.MaxQty,
		OrderType:  v1.OrderType,
		ClientID:   v1.ClientID,
	}
	ix.SelfTradeBehavior = r.selfTrade()
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

// extendMaxTs upgrades the 46-byte NewOrderV3 payload with a max timestamp
// of math.MaxInt64.
func extendMaxTs(d []byte) []byte {
	out := make([]byte, 0, newOrderV3Len)
	out = append(out, d...)
	var ts [8]byte
	for i := 0; i < 8; i++ {
		ts[i] = byte(uint64(math.MaxInt64) >> (8 * i))
	}
	return append(out, ts[:]...)
}

func readNewOrderV3(r *reader) NewOrderV3 {
	return NewOrderV3{
		Side:                        r.side(),
		LimitPrice:                  r.nonZero("limit price"),
		MaxCoinQty:                  r.nonZero("max coin qty"),
		MaxNativePcQtyIncludingFees: r.nonZero("max native pc qty"),
		SelfTradeBehavior:           r.selfTrade(),
		OrderType:                   r.orderType(),
		ClientOrderID:               r.u64(),
		Limit:                       r.u16(),
		MaxTs:                       r.i64(),
	}
}

func parseNewOrderV3(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := readNewOrderV3(&r)
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

func parseCancelOrder(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := CancelOrder{Side: r.side(), OrderID: r.u128()}
	for i := range ix.Owner {
		ix.Owner[i] = r.u64()
	}
	ix.OwnerSlot = r.u8()
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

func parseCancelOrderV2(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := CancelOrderV2{Side: r.side(), OrderID: r.u128()}
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

func parseSendTake(d []byte) (Instruction, error) {
	r := reader{buf: d}
	ix := SendTake{
		Side:                        r.side(),
		LimitPrice:                  r.nonZero("limit price"),
		MaxCoinQty:                  r.nonZero("max coin qty"),
		MaxNativePcQtyIncludingFees: r.nonZero("max native pc qty"),
		MinCoinQty:                  r.u64(),
		MinNativePcQty:              r.u64(),
		Limit:                       r.u16(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}

func parseCancelOrdersByClientIDs(d []byte) (Instruction, error) {
	r := reader{buf: d}
	var ix CancelOrdersByClientIDs
	for i := 0; i < len(d)/8; i++ {
		ix.ClientIDs[i] = r.u64()
	}
	return ix, r.err
}

func parseReplaceOrdersByClientIDs(d []byte) (Instruction, error) {
	r := reader{buf: d}
	count := r.u64()
	want := uint64((len(d) - 8) / newOrderV3Len)
	if r.err == nil && count != want {
		return nil, common.Payloadf("replace orders count %d does not match %d encoded orders", count, want)
	}
	ix := ReplaceOrdersByClientIDs{Orders: make([]NewOrderV3, 0, want)}
	for i := uint64(0); i < want && r.err == nil; i++ {
		ix.Orders = append(ix.Orders, readNewOrderV3(&r))
	}
	if r.err != nil {
		return nil, r.err
	}
	return ix, nil
}
