package raydium

import "strconv"

// AmmParam selects which pool parameter SetParams updates.
type AmmParam uint8

const (
	ParamStatus AmmParam = iota
	ParamState
	ParamOrderNum
	ParamDepth
	ParamAmountWave
	ParamMinPriceMultiplier
	ParamMaxPriceMultiplier
	ParamMinSize
	ParamVolMaxCutRatio
	ParamFees
	ParamAmmOwner
	ParamSetOpenTime
	ParamLastOrderDistance
	ParamInitOrderDepth
	ParamSetSwitchTime
	ParamClearOpenTime
	ParamSeperate
	ParamUpdateOpenOrder
)

var ammParamNames = [...]string{
	"status",
	"state",
	"orderNum",
	"depth",
	"amountWave",
	"minPriceMultiplier",
	"maxPriceMultiplier",
	"minSize",
	"volMaxCutRatio",
	"fees",
	"ammOwner",
	"setOpenTime",
	"lastOrderDistance",
	"initOrderDepth",
	"setSwitchTime",
	"clearOpenTime",
	"seperate",
	"updateOpenOrder",
}

func (p AmmParam) String() string {
	if int(p) < len(ammParamNames) {
		return ammParamNames[p]
	}
	return "param" + strconv.Itoa(int(p))
}

// SimulateParam selects the SimulateInfo query.
type SimulateParam uint8

const (
	SimulatePoolInfo SimulateParam = iota
	SimulateSwapBaseIn
	SimulateSwapBaseOut
	SimulateRunCrankInfo
)

// Fees is the 64-byte fee schedule carried by SetParams(Fees).
type Fees struct {
	MinSeparateNumerator   uint64
	MinSeparateDenominator uint64
	TradeFeeNumerator      uint64
	TradeFeeDenominator    uint64
	PnlNumerator           uint64
	PnlDenominator         uint64
	SwapFeeNumerator       uint64
	SwapFeeDenominator     uint64
}

// FeesLen is the packed size of Fees.
const FeesLen = 64

type LastOrderDistance struct {
	LastOrderNumerator   uint64
	LastOrderDenominator uint64
}

// Config update selectors for UpdateConfigAccount.
const (
	ConfigParamPnlOwner      uint8 = 0
	ConfigParamCancelOwner   uint8 = 1
	ConfigParamCreatePoolFee uint8 = 2
)
