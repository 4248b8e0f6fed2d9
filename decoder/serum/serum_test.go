package serum

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

func sampleOrder(clientID uint64) NewOrderV3 {
	return NewOrderV3{
		Side:                        SideAsk,
		LimitPrice:                  1_250,
		MaxCoinQty:                  10,
		MaxNativePcQtyIncludingFees: 12_600,
		SelfTradeBehavior:           SelfTradeCancelProvide,
		OrderType:                   OrderTypePostOnly,
		ClientOrderID:               clientID,
		Limit:                       65535,
		MaxTs:                       1_700_000_000,
	}
}

func header(disc Discriminant) *common.Writer {
	return common.NewWriter().U8(0).U32(uint32(disc))
}

func mustBytes(t *testing.T, w *common.Writer) []byte {
	t.Helper()
	b, err := w.Bytes()
	require.NoError(t, err)
	return b
}

func TestPackUnpackRoundTrip(t *testing.T) {
	instructions := []Instruction{
		InitializeMarket{CoinLotSize: 100, PcLotSize: 10, FeeRateBps: 22, VaultSignerNonce: 1, PcDustThreshold: 5},
		NewOrderV1{Side: SideBid, LimitPrice: 9, MaxQty: 3, OrderType: OrderTypeImmediateOrCancel, ClientID: 77},
		MatchOrders{Limit: 5},
		ConsumeEvents{Limit: 10},
		CancelOrder{Side: SideAsk, OrderID: uint128.New(123, 456), Owner: [4]uint64{1, 2, 3, 4}, OwnerSlot: 7},
		SettleFunds{},
		CancelOrderByClientID{ClientID: 99},
		DisableMarket{},
		SweepFees{},
		NewOrderV2{Side: SideAsk, LimitPrice: 1, MaxQty: 1, OrderType: OrderTypeLimit, ClientID: 1, SelfTradeBehavior: SelfTradeAbortTransaction},
		sampleOrder(42),
		CancelOrderV2{Side: SideBid, OrderID: uint128.From64(math.MaxUint64)},
		CancelOrderByClientIDV2{ClientID: 3},
		SendTake{Side: SideBid, LimitPrice: 4, MaxCoinQty: 5, MaxNativePcQtyIncludingFees: 6, MinCoinQty: 0, MinNativePcQty: 1, Limit: 20},
		CloseOpenOrders{},
		InitOpenOrders{},
		Prune{Limit: 3},
		ConsumeEventsPermissioned{Limit: 8},
		CancelOrdersByClientIDs{ClientIDs: [8]uint64{1, 2, 3, 4, 5, 6, 7, 8}},
		ReplaceOrderByClientID{Order: sampleOrder(5)},
		ReplaceOrdersByClientIDs{Orders: []NewOrderV3{sampleOrder(1), sampleOrder(2), sampleOrder(3)}},
	}

	for _, ix := range instructions {
		t.Run(ix.Discriminant().String(), func(t *testing.T) {
			data, err := Pack(ix)
			require.NoError(t, err)
			require.Equal(t, byte(0), data[0])

			got, err := Unpack(data)
			require.NoError(t, err)
			require.Equal(t, ix, got)
		})
	}
}

func TestPackedLengths(t *testing.T) {
	tests := []struct {
		ix   Instruction
		want int
	}{
		{InitializeMarket{}, 5 + 34},
		{sampleOrder(1), 5 + 54},
		{CancelOrder{}, 5 + 53},
		{SendTake{LimitPrice: 1, MaxCoinQty: 1, MaxNativePcQtyIncludingFees: 1}, 5 + 46},
		{CancelOrdersByClientIDs{ClientIDs: [8]uint64{9}}, 5 + 64},
		{ReplaceOrdersByClientIDs{Orders: []NewOrderV3{sampleOrder(1), sampleOrder(2)}}, 5 + 8 + 2*54},
		{SettleFunds{}, 5},
	}
	for _, tt := range tests {
		data, err := Pack(tt.ix)
		require.NoError(t, err)
		require.Len(t, data, tt.want, tt.ix.Discriminant().String())
	}
}

func TestUnpackNewOrderV3LegacyLength(t *testing.T) {
	order := sampleOrder(11)
	full, err := Pack(order)
	require.NoError(t, err)

	legacy := full[:len(full)-8]
	require.Len(t, legacy, 5+46)

	got, err := Unpack(legacy)
	require.NoError(t, err)
	v3, ok := got.(NewOrderV3)
	require.True(t, ok)
	require.Equal(t, int64(math.MaxInt64), v3.MaxTs)
	require.Equal(t, order.ClientOrderID, v3.ClientOrderID)
}

func TestUnpackCancelOrdersByClientIDsShortForm(t *testing.T) {
	data := mustBytes(t, header(DiscCancelOrdersByClientIDs).U64(10).U64(20).U64(30))
	got, err := Unpack(data)
	require.NoError(t, err)
	require.Equal(t, CancelOrdersByClientIDs{ClientIDs: [8]uint64{10, 20, 30}}, got)

	two, err := Unpack(mustBytes(t, header(DiscCancelOrdersByClientIDs).U64(0xAAAA).U64(0xBBBB)))
	require.NoError(t, err)
	require.Equal(t, CancelOrdersByClientIDs{ClientIDs: [8]uint64{0xAAAA, 0xBBBB, 0, 0, 0, 0, 0, 0}}, two)

	empty, err := Unpack(mustBytes(t, header(DiscCancelOrdersByClientIDs)))
	require.NoError(t, err)
	require.Equal(t, CancelOrdersByClientIDs{}, empty)
}

func TestUnpackRejects(t *testing.T) {
	order := sampleOrder(1)
	orderBytes, err := Pack(order)
	require.NoError(t, err)
	orderPayload := orderBytes[5:]

	zeroPrice := append([]byte{}, orderPayload...)
	for i := 4; i < 12; i++ {
		zeroPrice[i] = 0
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{0, 1, 0, 0}},
		{"too long", make([]byte, MaxInstructionLen+1)},
		{"bad version", mustBytes(t, common.NewWriter().U8(1).U32(5))},
		{"unknown discriminant", mustBytes(t, header(21))},
		{"wrong length for settle funds", mustBytes(t, header(DiscSettleFunds).U8(0))},
		{"wrong length for match orders", mustBytes(t, header(DiscMatchOrders).U32(1))},
		{"new order v3 odd length", append(mustBytes(t, header(DiscNewOrderV3)), orderPayload[:50]...)},
		{"new order v3 one past legacy", append(mustBytes(t, header(DiscNewOrderV3)), orderPayload[:47]...)},
		{"new order v3 one short of full", append(mustBytes(t, header(DiscNewOrderV3)), orderPayload[:53]...)},
		{"new order v3 one past full", append(append(mustBytes(t, header(DiscNewOrderV3)), orderPayload...), 0)},
		{"client ids not multiple of 8", mustBytes(t, header(DiscCancelOrdersByClientIDs).U32(1))},
		{"client ids too many", append(mustBytes(t, header(DiscCancelOrdersByClientIDs)), make([]byte, 72)...)},
		{"zero limit price", append(mustBytes(t, header(DiscNewOrderV3)), zeroPrice...)},
		{"invalid side", mustBytes(t, header(DiscCancelOrderV2).U32(2).U128(uint128.From64(1)))},
		{"invalid self trade", mustBytes(t, header(DiscNewOrderV2).U32(0).U64(1).U64(1).U32(0).U64(0).U32(3))},
		{"invalid order type", mustBytes(t, header(DiscNewOrder).U32(0).U64(1).U64(1).U32(3).U64(0))},
		{"replace count mismatch", append(mustBytes(t, header(DiscReplaceOrdersByClientIDs).U64(2)), orderPayload...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(tt.data)
			require.ErrorIs(t, err, common.ErrMalformedPayload)
		})
	}
}

func TestPackRejectsInvalid(t *testing.T) {
	tooMany := make([]NewOrderV3, 9)
	for i := range tooMany {
		tooMany[i] = sampleOrder(uint64(i))
	}
	for _, ix := range []Instruction{
		NewOrderV1{Side: SideBid, MaxQty: 1},
		NewOrderV3{LimitPrice: 1, MaxCoinQty: 1},
		SendTake{MaxCoinQty: 1, MaxNativePcQtyIncludingFees: 1},
		ReplaceOrdersByClientIDs{Orders: tooMany},
	} {
		_, err := Pack(ix)
		require.ErrorIs(t, err, common.ErrMalformedPayload)
	}
}

func TestPackRejectsOutOfRangeEnums(t *testing.T) {
	badSide := sampleOrder(1)
	badSide.Side = 2
	badOrderType := sampleOrder(1)
	badOrderType.OrderType = 3
	badSelfTrade := sampleOrder(1)
	badSelfTrade.SelfTradeBehavior = 3

	for name, ix := range map[string]Instruction{
		"new order v1 side":       NewOrderV1{Side: 7, LimitPrice: 1, MaxQty: 1},
		"new order v1 order type": NewOrderV1{LimitPrice: 1, MaxQty: 1, OrderType: 9},
		"new order v2 self trade": NewOrderV2{LimitPrice: 1, MaxQty: 1, SelfTradeBehavior: 4},
		"new order v3 side":       badSide,
		"new order v3 order type": badOrderType,
		"new order v3 self trade": badSelfTrade,
		"cancel order side":       CancelOrder{Side: 2},
		"cancel order v2 side":    CancelOrderV2{Side: math.MaxUint32},
		"send take side":          SendTake{Side: 2, LimitPrice: 1, MaxCoinQty: 1, MaxNativePcQtyIncludingFees: 1},
		"replace order":           ReplaceOrderByClientID{Order: badSide},
		"replace orders":          ReplaceOrdersByClientIDs{Orders: []NewOrderV3{sampleOrder(1), badSelfTrade}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Pack(ix)
			require.ErrorIs(t, err, common.ErrMalformedPayload)
		})
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	for _, ix := range []Instruction{
		sampleOrder(9),
		CancelOrder{Side: SideAsk, OrderID: uint128.New(5, 6), Owner: [4]uint64{1, 2, 3, 4}},
		CancelOrdersByClientIDs{ClientIDs: [8]uint64{1, 2}},
	} {
		data, err := Pack(ix)
		require.NoError(t, err)
		accounts := make([]solana.PublicKey, 14)
		for i := range accounts {
			accounts[i][0] = byte(i + 1)
		}
		in := common.Instruction{ProgramID: ProgramKey, Accounts: accounts, Data: data}

		first, err := Decode(in)
		require.NoError(t, err)
		second, err := Decode(in)
		require.NoError(t, err)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		require.Equal(t, string(a), string(b), ix.Discriminant().String())
	}
}

func TestRenderNewOrderV3(t *testing.T) {
	accounts := make([]solana.PublicKey, 13)
	for i := range accounts {
		accounts[i][0] = byte(i + 1)
	}

	decoded, err := Render(sampleOrder(42), accounts)
	require.NoError(t, err)
	require.Equal(t, "newOrderV3", decoded.Name)
	require.Equal(t, "ask", decoded.Data["side"])
	require.Equal(t, "postOnly", decoded.Data["order_type"])
	require.Equal(t, "cancelProvide", decoded.Data["self_trade_behavior"])
	require.Equal(t, uint64(42), decoded.Data["client_order_id"])
	require.Equal(t, accounts[12].String(), decoded.Accounts["srm_discount_account"])
	require.Equal(t, accounts[7].String(), decoded.Accounts["open_orders_owner"])
}

func TestRenderConsumeEventsTail(t *testing.T) {
	accounts := make([]solana.PublicKey, 7)
	for i := range accounts {
		accounts[i][31] = byte(i + 1)
	}

	decoded, err := Render(ConsumeEvents{Limit: 5}, accounts)
	require.NoError(t, err)
	require.Equal(t, "consumeEvents", decoded.Name)
	require.Equal(t, []string{accounts[0].String(), accounts[1].String(), accounts[2].String()}, decoded.Accounts["open_orders"])
	require.Equal(t, accounts[3].String(), decoded.Accounts["market"])
	require.Equal(t, accounts[4].String(), decoded.Accounts["event_queue"])

	permissioned, err := Render(ConsumeEventsPermissioned{Limit: 5}, accounts)
	require.NoError(t, err)
	require.Equal(t, accounts[6].String(), permissioned.Accounts["crank_authority"])
	require.Len(t, permissioned.Accounts["open_orders"], 4)
}

func TestRenderCancelOrderOwner(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("AjVKSwyZGeGeyvmCr1FBciR6pLcaErdLEEiJGAnbq1ct")
	var words [4]uint64
	for i := range words {
		for j := 0; j < 8; j++ {
			words[i] |= uint64(owner[i*8+j]) << (8 * j)
		}
	}

	decoded, err := Render(CancelOrder{Side: SideBid, OrderID: uint128.New(1, 1), Owner: words, OwnerSlot: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, owner.String(), decoded.Data["owner"])
	require.Equal(t, "18446744073709551617", decoded.Data["order_id"])
	require.Empty(t, decoded.Accounts)
}

func TestDecodeThroughInstruction(t *testing.T) {
	data, err := Pack(CancelOrdersByClientIDs{ClientIDs: [8]uint64{4, 5}})
	require.NoError(t, err)

	decoded, err := Decode(common.Instruction{ProgramID: ProgramKey, Data: data})
	require.NoError(t, err)
	require.Equal(t, "cancelOrdersByClientIds", decoded.Name)
	require.Equal(t, []uint64{4, 5}, decoded.Data["client_ids"])
}
