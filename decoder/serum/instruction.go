package serum

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Serum DEX v3 program ID
const ProgramID = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

var (
	ProgramKey = solana.MustPublicKeyFromBase58(ProgramID)

	SRMMint          = solana.MustPublicKeyFromBase58("SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt")
	MSRMMint         = solana.MustPublicKeyFromBase58("MSRMcoVyrFxnSgo5uXwone5SKcGhT1KEJMFEkMEWf9L")
	DisableAuthority = solana.MustPublicKeyFromBase58("5ZVJgwWxMsqXxRMYHXqMwH2hd4myX5Ef4Au2iUsuNQ7V")
	FeeSweeper       = solana.MustPublicKeyFromBase58("DeqYsmBd9BnrbgUwQjVH4sQWK71dEgE6eoZFw3Rp4ftE")
)

// Discriminant is the u32 that follows the version byte.
type Discriminant uint32

const (
	DiscInitializeMarket Discriminant = iota
	DiscNewOrder
	DiscMatchOrders
	DiscConsumeEvents
	DiscCancelOrder
	DiscSettleFunds
	DiscCancelOrderByClientID
	DiscDisableMarket
	DiscSweepFees
	DiscNewOrderV2
	DiscNewOrderV3
	DiscCancelOrderV2
	DiscCancelOrderByClientIDV2
	DiscSendTake
	DiscCloseOpenOrders
	DiscInitOpenOrders
	DiscPrune
	DiscConsumeEventsPermissioned
	DiscCancelOrdersByClientIDs
	DiscReplaceOrderByClientID
	DiscReplaceOrdersByClientIDs
)

var discNames = [...]string{
	"initializeMarket",
	"newOrder",
	"matchOrders",
	"consumeEvents",
	"cancelOrder",
	"settleFunds",
	"cancelOrderByClientId",
	"disableMarket",
	"sweepFees",
	"newOrderV2",
	"newOrderV3",
	"cancelOrderV2",
	"cancelOrderByClientIdV2",
	"sendTake",
	"closeOpenOrders",
	"initOpenOrders",
	"prune",
	"consumeEventsPermissioned",
	"cancelOrdersByClientIds",
	"replaceOrderByClientId",
	"replaceOrdersByClientIds",
}

func (d Discriminant) String() string {
	if int(d) < len(discNames) {
		return discNames[d]
	}
	return "unknown"
}

// Instruction is implemented by every market instruction variant.
type Instruction interface {
	Discriminant() Discriminant
}

type InitializeMarket struct {
	CoinLotSize      uint64
	PcLotSize        uint64
	FeeRateBps       uint16
	VaultSignerNonce uint64
	PcDustThreshold  uint64
}

// NewOrderV1 is the deprecated order placement form. LimitPrice and MaxQty
// are never zero.
type NewOrderV1 struct {
	Side       Side
	LimitPrice uint64
	MaxQty     uint64
	OrderType  OrderType
	ClientID   uint64
}

type MatchOrders struct {
	Limit uint16
}

type ConsumeEvents struct {
	Limit uint16
}

// CancelOrder identifies the owner by the four u64 words of its key.
type CancelOrder struct {
	Side      Side
	OrderID   uint128.Uint128
	Owner     [4]uint64
	OwnerSlot uint8
}

type SettleFunds struct{}

type CancelOrderByClientID struct {
	ClientID uint64
}

type DisableMarket struct{}

type SweepFees struct{}

type NewOrderV2 struct {
	Side              Side
	LimitPrice        uint64
	MaxQty            uint64
	OrderType         OrderType
	ClientID          uint64
	SelfTradeBehavior SelfTradeBehavior
}

// NewOrderV3 is the current order placement form. The 46-byte legacy
// encoding omits MaxTs, which then decodes as math.MaxInt64.
type NewOrderV3 struct {
	Side                        Side
	LimitPrice                  uint64
	MaxCoinQty                  uint64
	MaxNativePcQtyIncludingFees uint64
	SelfTradeBehavior           SelfTradeBehavior
	OrderType                   OrderType
	ClientOrderID               uint64
	Limit                       uint16
	MaxTs                       int64
}

type CancelOrderV2 struct {
	Side    Side
	OrderID uint128.Uint128
}

type CancelOrderByClientIDV2 struct {
	ClientID uint64
}

type SendTake struct {
	Side                        Side
	LimitPrice                  uint64
	MaxCoinQty                  uint64
	MaxNativePcQtyIncludingFees uint64
	MinCoinQty                  uint64
	MinNativePcQty              uint64
	Limit                       uint16
}

type CloseOpenOrders struct{}

type InitOpenOrders struct{}

type Prune struct {
	Limit uint16
}

type ConsumeEventsPermissioned struct {
	Limit uint16
}

// CancelOrdersByClientIDs always carries eight slots; unused ones are zero.
type CancelOrdersByClientIDs struct {
	ClientIDs [8]uint64
}

type ReplaceOrderByClientID struct {
	Order NewOrderV3
}

type ReplaceOrdersByClientIDs struct {
	Orders []NewOrderV3
}

func (InitializeMarket) Discriminant() Discriminant          { return DiscInitializeMarket }
func (NewOrderV1) Discriminant() Discriminant                { return DiscNewOrder }
func (MatchOrders) Discriminant() Discriminant               { return DiscMatchOrders }
func (ConsumeEvents) Discriminant() Discriminant             { return DiscConsumeEvents }
func (CancelOrder) Discriminant() Discriminant               { return DiscCancelOrder }
func (SettleFunds) Discriminant() Discriminant               { return DiscSettleFunds }
func (CancelOrderByClientID) Discriminant() Discriminant     { return DiscCancelOrderByClientID }
func (DisableMarket) Discriminant() Discriminant             { return DiscDisableMarket }
func (SweepFees) Discriminant() Discriminant                 { return DiscSweepFees }
func (NewOrderV2) Discriminant() Discriminant                { return DiscNewOrderV2 }
func (NewOrderV3) Discriminant() Discriminant                { return DiscNewOrderV3 }
func (CancelOrderV2) Discriminant() Discriminant             { return DiscCancelOrderV2 }
func (CancelOrderByClientIDV2) Discriminant() Discriminant   { return DiscCancelOrderByClientIDV2 }
func (SendTake) Discriminant() Discriminant                  { return DiscSendTake }
func (CloseOpenOrders) Discriminant() Discriminant           { return DiscCloseOpenOrders }
func (InitOpenOrders) Discriminant() Discriminant            { return DiscInitOpenOrders }
func (Prune) Discriminant() Discriminant                     { return DiscPrune }
func (ConsumeEventsPermissioned) Discriminant() Discriminant { return DiscConsumeEventsPermissioned }
func (CancelOrdersByClientIDs) Discriminant() Discriminant   { return DiscCancelOrdersByClientIDs }
func (ReplaceOrderByClientID) Discriminant() Discriminant    { return DiscReplaceOrderByClientID }
func (ReplaceOrdersByClientIDs) Discriminant() Discriminant  { return DiscReplaceOrdersByClientIDs }
