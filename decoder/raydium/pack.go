package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

// Pack serializes an instruction into the byte layout Unpack accepts.
func Pack(ix Instruction) ([]byte, error) {
	if ix == nil {
		return nil, common.Payloadf("nil instruction")
	}
	w := common.NewWriter().U8(uint8(ix.Tag()))

	switch v := ix.(type) {
	case Initialize:
		w.U8(v.Nonce).U64(v.OpenTime)
	case Initialize2:
		w.U8(v.Nonce).U64(v.OpenTime).U64(v.InitPcAmount).U64(v.InitCoinAmount)
	case MonitorStep:
		w.U16(v.PlanOrderLimit).U16(v.PlaceOrderLimit).U16(v.CancelOrderLimit)
	case Deposit:
		w.U64(v.MaxCoinAmount).U64(v.MaxPcAmount).U64(v.BaseSide)
	case Withdraw:
		w.U64(v.Amount)
	case MigrateToOpenBook, WithdrawPnl, CreateConfigAccount:
	case SetParams:
		if err := packSetParams(w, v); err != nil {
			return nil, err
		}
	case WithdrawSrm:
		w.U64(v.Amount)
	case SwapBaseIn:
		w.U64(v.AmountIn).U64(v.MinimumAmountOut)
	case PreInitialize:
		w.U8(v.Nonce)
	case SwapBaseOut:
		w.U64(v.MaxAmountIn).U64(v.AmountOut)
	case SimulateInfo:
		if err := packSimulateInfo(w, v); err != nil {
			return nil, err
		}
	case AdminCancelOrders:
		w.U16(v.Limit)
	case UpdateConfigAccount:
		if err := packUpdateConfigAccount(w, v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("pack: unsupported instruction type %T", ix)
	}
	return w.Bytes()
}

func packSetParams(w *common.Writer, v SetParams) error {
	w.U8(uint8(v.Param))
	switch v.Param {
	case ParamAmmOwner:
		if v.NewPubkey == nil {
			return common.Payloadf("set params %s: new pubkey missing", v.Param)
		}
		w.Pubkey(*v.NewPubkey)
	case ParamFees:
		if v.Fees == nil {
			return common.Payloadf("set params %s: fees missing", v.Param)
		}
		f := v.Fees
		w.U64(f.MinSeparateNumerator).U64(f.MinSeparateDenominator).
			U64(f.TradeFeeNumerator).U64(f.TradeFeeDenominator).
			U64(f.PnlNumerator).U64(f.PnlDenominator).
			U64(f.SwapFeeNumerator).U64(f.SwapFeeDenominator)
	case ParamLastOrderDistance:
		if v.LastOrderDistance == nil {
			return common.Payloadf("set params %s: last order distance missing", v.Param)
		}
		w.U64(v.LastOrderDistance.LastOrderNumerator).U64(v.LastOrderDistance.LastOrderDenominator)
	default:
		if v.Value == nil {
			return common.Payloadf("set params %s: value missing", v.Param)
		}
		w.U64(*v.Value)
	}
	return nil
}

func packSimulateInfo(w *common.Writer, v SimulateInfo) error {
	w.U8(uint8(v.Param))
	switch v.Param {
	case SimulatePoolInfo, SimulateRunCrankInfo:
	case SimulateSwapBaseIn:
		if v.SwapBaseIn == nil {
			return common.Payloadf("simulate info: swap base in values missing")
		}
		w.U64(v.SwapBaseIn.AmountIn).U64(v.SwapBaseIn.MinimumAmountOut)
	case SimulateSwapBaseOut:
		if v.SwapBaseOut == nil {
			return common.Payloadf("simulate info: swap base out values missing")
		}
		w.U64(v.SwapBaseOut.MaxAmountIn).U64(v.SwapBaseOut.AmountOut)
	default:
		return common.Payloadf("unknown simulate param %d", v.Param)
	}
	return nil
}

func packUpdateConfigAccount(w *common.Writer, v UpdateConfigAccount) error {
	w.U8(v.Param)
	switch v.Param {
	case ConfigParamPnlOwner, ConfigParamCancelOwner:
		if v.Owner == nil || v.Owner.Equals(solana.PublicKey{}) {
			return common.Payloadf("update config account: owner missing")
		}
		w.Pubkey(*v.Owner)
	case ConfigParamCreatePoolFee:
		if v.CreatePoolFee == nil {
			return common.Payloadf("update config account: create pool fee missing")
		}
		w.U64(*v.CreatePoolFee)
	default:
		return common.Payloadf("unknown config param %d", v.Param)
	}
	return nil
}
