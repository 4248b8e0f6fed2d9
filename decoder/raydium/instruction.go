package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// Raydium AMM v4 program ID
const ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

var ProgramKey = solana.MustPublicKeyFromBase58(ProgramID)

// Tag is the leading instruction byte.
type Tag uint8

const (
	TagInitialize Tag = iota
	TagInitialize2
	TagMonitorStep
	TagDeposit
	TagWithdraw
	TagMigrateToOpenBook
	TagSetParams
	TagWithdrawPnl
	TagWithdrawSrm
	TagSwapBaseIn
	TagPreInitialize
	TagSwapBaseOut
	TagSimulateInfo
	TagAdminCancelOrders
	TagCreateConfigAccount
	TagUpdateConfigAccount
)

var tagNames = [...]string{
	"initialize",
	"initialize2",
	"monitorStep",
	"deposit",
	"withdraw",
	"migrateToOpenBook",
	"setParams",
	"withdrawPnl",
	"withdrawSrm",
	"swapBaseIn",
	"preInitialize",
	"swapBaseOut",
	"simulateInfo",
	"adminCancelOrders",
	"createConfigAccount",
	"updateConfigAccount",
}

// String returns the lower-camel instruction name used in rendered output.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// Instruction is implemented by every AMM instruction variant.
type Instruction interface {
	Tag() Tag
}

type Initialize struct {
	Nonce    uint8
	OpenTime uint64
}

type Initialize2 struct {
	Nonce          uint8
	OpenTime       uint64
	InitPcAmount   uint64
	InitCoinAmount uint64
}

type MonitorStep struct {
	PlanOrderLimit   uint16
	PlaceOrderLimit  uint16
	CancelOrderLimit uint16
}

type Deposit struct {
	MaxCoinAmount uint64
	MaxPcAmount   uint64
	BaseSide      uint64
}

type Withdraw struct {
	Amount uint64
}

type MigrateToOpenBook struct{}

// SetParams carries exactly one populated payload, chosen by Param:
// AmmOwner sets NewPubkey, Fees sets Fees, LastOrderDistance sets
// LastOrderDistance and every other selector sets Value.
type SetParams struct {
	Param             AmmParam
	Value             *uint64
	NewPubkey         *solana.PublicKey
	Fees              *Fees
	LastOrderDistance *LastOrderDistance
}

type WithdrawPnl struct{}

type WithdrawSrm struct {
	Amount uint64
}

type SwapBaseIn struct {
	AmountIn         uint64
	MinimumAmountOut uint64
}

type PreInitialize struct {
	Nonce uint8
}

type SwapBaseOut struct {
	MaxAmountIn uint64
	AmountOut   uint64
}

// SimulateInfo sets SwapBaseIn or SwapBaseOut for the matching selector.
type SimulateInfo struct {
	Param       SimulateParam
	SwapBaseIn  *SwapBaseIn
	SwapBaseOut *SwapBaseOut
}

type AdminCancelOrders struct {
	Limit uint16
}

type CreateConfigAccount struct{}

// UpdateConfigAccount sets Owner for params 0 and 1, CreatePoolFee for 2.
type UpdateConfigAccount struct {
	Param         uint8
	Owner         *solana.PublicKey
	CreatePoolFee *uint64
}

func (Initialize) Tag() Tag          { return TagInitialize }
func (Initialize2) Tag() Tag         { return TagInitialize2 }
func (MonitorStep) Tag() Tag         { return TagMonitorStep }
func (Deposit) Tag() Tag             { return TagDeposit }
func (Withdraw) Tag() Tag            { return TagWithdraw }
func (MigrateToOpenBook) Tag() Tag   { return TagMigrateToOpenBook }
func (SetParams) Tag() Tag           { return TagSetParams }
func (WithdrawPnl) Tag() Tag         { return TagWithdrawPnl }
func (WithdrawSrm) Tag() Tag         { return TagWithdrawSrm }
func (SwapBaseIn) Tag() Tag          { return TagSwapBaseIn }
func (PreInitialize) Tag() Tag       { return TagPreInitialize }
func (SwapBaseOut) Tag() Tag         { return TagSwapBaseOut }
func (SimulateInfo) Tag() Tag        { return TagSimulateInfo }
func (AdminCancelOrders) Tag() Tag   { return TagAdminCancelOrders }
func (CreateConfigAccount) Tag() Tag { return TagCreateConfigAccount }
func (UpdateConfigAccount) Tag() Tag { return TagUpdateConfigAccount }
