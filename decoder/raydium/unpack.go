package raydium

import (
	"github.com/rexbrahh/ix-decoder/decoder/common"
)

// Unpack parses AMM instruction data. The first byte selects the variant;
// bytes left over after the variant's fields are ignored.
func Unpack(data []byte) (Instruction, error) {
	tag, rest, err := common.UnpackU8(data)
	if err != nil {
		return nil, common.Payloadf("empty instruction data")
	}

	switch Tag(tag) {
	case TagInitialize:
		nonce, rest, err := common.UnpackU8(rest)
		if err != nil {
			return nil, err
		}
		openTime, _, err := common.UnpackU64(rest)
		if err != nil {
			return nil, err
		}
		return Initialize{Nonce: nonce, OpenTime: openTime}, nil

	case TagInitialize2:
		var ix Initialize2
		if ix.Nonce, rest, err = common.UnpackU8(rest); err != nil {
			return nil, err
		}
		if ix.OpenTime, rest, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		if ix.InitPcAmount, rest, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		if ix.InitCoinAmount, _, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		return ix, nil

	case TagMonitorStep:
		var ix MonitorStep
		if ix.PlanOrderLimit, rest, err = common.UnpackU16(rest); err != nil {
			return nil, err
		}
		if ix.PlaceOrderLimit, rest, err = common.UnpackU16(rest); err != nil {
			return nil, err
		}
		if ix.CancelOrderLimit, _, err = common.UnpackU16(rest); err != nil {
			return nil, err
		}
		return ix, nil

	case TagDeposit:
		var ix Deposit
		if ix.MaxCoinAmount, rest, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		if ix.MaxPcAmount, rest, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		if ix.BaseSide, _, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		return ix, nil

	case TagWithdraw:
		amount, _, err := common.UnpackU64(rest)
		if err != nil {
			return nil, err
		}
		return Withdraw{Amount: amount}, nil

	case TagMigrateToOpenBook:
		return MigrateToOpenBook{}, nil

	case TagSetParams:
		return unpackSetParams(rest)

	case TagWithdrawPnl:
		return WithdrawPnl{}, nil

	case TagWithdrawSrm:
		amount, _, err := common.UnpackU64(rest)
		if err != nil {
			return nil, err
		}
		return WithdrawSrm{Amount: amount}, nil

	case TagSwapBaseIn:
		in, err := unpackSwapBaseIn(rest)
		if err != nil {
			return nil, err
		}
		return in, nil

	case TagPreInitialize:
		nonce, _, err := common.UnpackU8(rest)
		if err != nil {
			return nil, err
		}
		return PreInitialize{Nonce: nonce}, nil

	case TagSwapBaseOut:
		out, err := unpackSwapBaseOut(rest)
		if err != nil {
			return nil, err
		}
		return out, nil

	case TagSimulateInfo:
		return unpackSimulateInfo(rest)

	case TagAdminCancelOrders:
		limit, _, err := common.UnpackU16(rest)
		if err != nil {
			return nil, err
		}
		return AdminCancelOrders{Limit: limit}, nil

	case TagCreateConfigAccount:
		return CreateConfigAccount{}, nil

	case TagUpdateConfigAccount:
		return unpackUpdateConfigAccount(rest)

	default:
		return nil, common.Payloadf("unknown amm instruction tag %d", tag)
	}
}

func unpackSwapBaseIn(rest []byte) (SwapBaseIn, error) {
	var ix SwapBaseIn
	var err error
	if ix.AmountIn, rest, err = common.UnpackU64(rest); err != nil {
		return ix, err
	}
	if ix.MinimumAmountOut, _, err = common.UnpackU64(rest); err != nil {
		return ix, err
	}
	return ix, nil
}

func unpackSwapBaseOut(rest []byte) (SwapBaseOut, error) {
	var ix SwapBaseOut
	var err error
	if ix.MaxAmountIn, rest, err = common.UnpackU64(rest); err != nil {
		return ix, err
	}
	if ix.AmountOut, _, err = common.UnpackU64(rest); err != nil {
		return ix, err
	}
	return ix, nil
}

func unpackSetParams(rest []byte) (Instruction, error) {
	raw, rest, err := common.UnpackU8(rest)
	if err != nil {
		return nil, err
	}
	param := AmmParam(raw)
	ix := SetParams{Param: param}

	switch param {
	case ParamAmmOwner:
		pk, _, err := common.UnpackPubkey(rest)
		if err != nil {
			return nil, common.Payloadf("set params %s: %v", param, err)
		}
		ix.NewPubkey = &pk
	case ParamFees:
		if len(rest) < FeesLen {
			return nil, common.Payloadf("set params fees needs %d bytes, have %d", FeesLen, len(rest))
		}
		fees := unpackFees(rest[:FeesLen])
		ix.Fees = &fees
	case ParamLastOrderDistance:
		var d LastOrderDistance
		if d.LastOrderNumerator, rest, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		if d.LastOrderDenominator, _, err = common.UnpackU64(rest); err != nil {
			return nil, err
		}
		ix.LastOrderDistance = &d
	default:
		// Unknown selectors (above UpdateOpenOrder included) carry a plain u64.
		value, _, err := common.UnpackU64(rest)
		if err != nil {
			return nil, err
		}
		ix.Value = &value
	}
	return ix, nil
}

// unpackFees expects exactly FeesLen bytes.
func unpackFees(b []byte) Fees {
	var vals [8]uint64
	for i := range vals {
		vals[i], b, _ = common.UnpackU64(b)
	}
	return Fees{
		MinSeparateNumerator:   vals[0],
		MinSeparateDenominator: vals[1],
		TradeFeeNumerator:      vals[2],
		TradeFeeDenominator:    vals[3],
		PnlNumerator:           vals[4],
		PnlDenominator:         vals[5],
		SwapFeeNumerator:       vals[6],
		SwapFeeDenominator:     vals[7],
	}
}

func unpackSimulateInfo(rest []byte) (Instruction, error) {
	raw, rest, err := common.UnpackU8(rest)
	if err != nil {
		return nil, err
	}
	ix := SimulateInfo{Param: SimulateParam(raw)}
	switch ix.Param {
	case SimulatePoolInfo, SimulateRunCrankInfo:
	case SimulateSwapBaseIn:
		in, err := unpackSwapBaseIn(rest)
		if err != nil {
			return nil, err
		}
		ix.SwapBaseIn = &in
	case SimulateSwapBaseOut:
		out, err := unpackSwapBaseOut(rest)
		if err != nil {
			return nil, err
		}
		ix.SwapBaseOut = &out
	default:
		return nil, common.Payloadf("unknown simulate param %d", raw)
	}
	return ix, nil
}

func unpackUpdateConfigAccount(rest []byte) (Instruction, error) {
	param, rest, err := common.UnpackU8(rest)
	if err != nil {
		return nil, err
	}
	ix := UpdateConfigAccount{Param: param}
	switch param {
	case ConfigParamPnlOwner, ConfigParamCancelOwner:
		owner, _, err := common.UnpackPubkey(rest)
		if err != nil {
			return nil, err
		}
		ix.Owner = &owner
	case ConfigParamCreatePoolFee:
		fee, _, err := common.UnpackU64(rest)
		if err != nil {
			return nil, err
		}
		ix.CreatePoolFee = &fee
	default:
		return nil, common.Payloadf("unknown config param %d", param)
	}
	return ix, nil
}
