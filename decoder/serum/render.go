package serum

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

func names(n ...string) common.AccountTemplate { return common.AccountTemplate{Names: n} }

var (
	initializeMarketAccounts = names(
		"market", "request_queue", "event_queue", "bids", "asks",
		"coin_vault", "pc_vault", "coin_mint", "pc_mint", "rent",
		"open_orders_market_authority", "prune_authority", "crank_authority",
	)
	newOrderAccounts = names(
		"market", "open_orders", "request_queue", "order_payer", "open_orders_owner",
		"coin_vault", "pc_vault", "token_program", "rent", "srm_discount_account",
	)
	matchOrdersAccounts = names("market", "request_queue", "event_queue", "bids", "asks")
	cancelOrderAccounts = names("market", "open_orders", "request_queue", "open_orders_owner")
	settleFundsAccounts = names(
		"market", "open_orders", "open_orders_owner", "coin_vault", "pc_vault",
		"coin_wallet", "pc_wallet", "vault_signer", "token_program", "referrer_pc_wallet",
	)
	disableMarketAccounts = names("market", "disable_authority")
	sweepFeesAccounts     = names(
		"market", "pc_vault", "fee_sweeping_authority", "fee_receivable_account",
		"vault_signer", "token_program",
	)
	newOrderV3Accounts = names(
		"market", "open_orders", "request_queue", "event_queue", "bids", "asks",
		"order_payer", "open_orders_owner", "coin_vault", "pc_vault", "token_program",
		"rent", "srm_discount_account",
	)
	cancelOrderV2Accounts = names("market", "bids", "asks", "open_orders", "open_orders_owner", "event_queue")
	sendTakeAccounts      = names(
		"market", "request_queue", "event_queue", "bids", "asks", "coin_wallet",
		"pc_wallet", "signer", "coin_vault", "pc_vault", "token_program",
		"vault_signer", "srm_discount_account",
	)
	closeOpenOrdersAccounts = names("open_orders", "open_orders_owner", "rent_destination", "market")
	initOpenOrdersAccounts  = names("open_orders", "open_orders_owner", "market", "rent", "open_orders_market_authority")
	pruneAccounts           = names(
		"market", "bids", "asks", "prune_authority", "open_orders",
		"open_orders_owner", "event_queue",
	)

	consumeEventsTail             = []string{"market", "event_queue", "coin_fee_receivable_account", "pc_fee_receivable_account"}
	consumeEventsPermissionedTail = []string{"market", "event_queue", "crank_authority"}
)

// bindTail names the trailing accounts and groups everything before them
// under open_orders.
func bindTail(accounts []solana.PublicKey, tail []string) map[string]any {
	if len(accounts) <= len(tail) {
		return names(tail...).Bind(accounts)
	}
	split := len(accounts) - len(tail)
	out := names(tail...).Bind(accounts[split:])
	openOrders := make([]string, 0, split)
	for _, acc := range accounts[:split] {
		openOrders = append(openOrders, acc.String())
	}
	out["open_orders"] = openOrders
	return out
}

func newOrderV3Data(v NewOrderV3) map[string]any {
	return map[string]any{
		"side":                             v.Side.String(),
		"limit_price":                      v.LimitPrice,
		"max_coin_qty":                     v.MaxCoinQty,
		"max_native_pc_qty_including_fees": v.MaxNativePcQtyIncludingFees,
		"self_trade_behavior":              v.SelfTradeBehavior.String(),
		"order_type":                       v.OrderType.String(),
		"client_order_id":                  v.ClientOrderID,
		"limit":                            v.Limit,
		"max_ts":                           v.MaxTs,
	}
}

// Render produces the named, JSON-ready form of a market instruction.
// u128 order ids are rendered as decimal strings.
func Render(ix Instruction, accounts []solana.PublicKey) (*common.DecodedInstruction, error) {
	if ix == nil {
		return nil, common.Payloadf("nil instruction")
	}
	var (
		data  map[string]any
		bound map[string]any
	)

	switch v := ix.(type) {
	case InitializeMarket:
		data = map[string]any{
			"coin_lot_size":      v.CoinLotSize,
			"pc_lot_size":        v.PcLotSize,
			"fee_rate_bps":       v.FeeRateBps,
			"vault_signer_nonce": v.VaultSignerNonce,
			"pc_dust_threshold":  v.PcDustThreshold,
		}
		bound = initializeMarketAccounts.Bind(accounts)
	case NewOrderV1:
		data = map[string]any{
			"side":        v.Side.String(),
			"limit_price": v.LimitPrice,
			"max_qty":     v.MaxQty,
			"order_type":  v.OrderType.String(),
			"client_id":   v.ClientID,
		}
		bound = newOrderAccounts.Bind(accounts)
	case MatchOrders:
		data = map[string]any{"limit": v.Limit}
		bound = matchOrdersAccounts.Bind(accounts)
	case ConsumeEvents:
		data = map[string]any{"limit": v.Limit}
		bound = bindTail(accounts, consumeEventsTail)
	case CancelOrder:
		data = map[string]any{
			"side":       v.Side.String(),
			"order_id":   v.OrderID.String(),
			"owner":      ownerKey(v.Owner).String(),
			"owner_slot": v.OwnerSlot,
		}
		bound = cancelOrderAccounts.Bind(accounts)
	case SettleFunds:
		data = map[string]any{}
		bound = settleFundsAccounts.Bind(accounts)
	case CancelOrderByClientID:
		data = map[string]any{"client_id": v.ClientID}
		bound = cancelOrderAccounts.Bind(accounts)
	case DisableMarket:
		data = map[string]any{}
		bound = disableMarketAccounts.Bind(accounts)
	case SweepFees:
		data = map[string]any{}
		bound = sweepFeesAccounts.Bind(accounts)
	case NewOrderV2:
		data = map[string]any{
			"side":                v.Side.String(),
			"limit_price":         v.LimitPrice,
			"max_qty":             v.MaxQty,
			"order_type":          v.OrderType.String(),
			"client_id":           v.ClientID,
			"self_trade_behavior": v.SelfTradeBehavior.String(),
		}
		bound = newOrderAccounts.Bind(accounts)
	case NewOrderV3:
		data = newOrderV3Data(v)
		bound = newOrderV3Accounts.Bind(accounts)
	case CancelOrderV2:
		data = map[string]any{
			"side":     v.Side.String(),
			"order_id": v.OrderID.String(),
		}
		bound = cancelOrderV2Accounts.Bind(accounts)
	case CancelOrderByClientIDV2:
		data = map[string]any{"client_id": v.ClientID}
		bound = cancelOrderV2Accounts.Bind(accounts)
	case SendTake:
		data = map[string]any{
			"side":                             v.Side.String(),
			"limit_price":                      v.LimitPrice,
			"max_coin_qty":                     v.MaxCoinQty,
			"max_native_pc_qty_including_fees": v.MaxNativePcQtyIncludingFees,
			"min_coin_qty":                     v.MinCoinQty,
			"min_native_pc_qty":                v.MinNativePcQty,
			"limit":                            v.Limit,
		}
		bound = sendTakeAccounts.Bind(accounts)
	case CloseOpenOrders:
		data = map[string]any{}
		bound = closeOpenOrdersAccounts.Bind(accounts)
	case InitOpenOrders:
		data = map[string]any{}
		bound = initOpenOrdersAccounts.Bind(accounts)
	case Prune:
		data = map[string]any{"limit": v.Limit}
		bound = pruneAccounts.Bind(accounts)
	case ConsumeEventsPermissioned:
		data = map[string]any{"limit": v.Limit}
		bound = bindTail(accounts, consumeEventsPermissionedTail)
	case CancelOrdersByClientIDs:
		ids := make([]uint64, 0, len(v.ClientIDs))
		for _, id := range v.ClientIDs {
			if id != 0 {
				ids = append(ids, id)
			}
		}
		data = map[string]any{"client_ids": ids}
		bound = cancelOrderV2Accounts.Bind(accounts)
	case ReplaceOrderByClientID:
		data = newOrderV3Data(v.Order)
		bound = newOrderV3Accounts.Bind(accounts)
	case ReplaceOrdersByClientIDs:
		orders := make([]map[string]any, 0, len(v.Orders))
		for _, o := range v.Orders {
			orders = append(orders, newOrderV3Data(o))
		}
		data = map[string]any{"orders": orders}
		bound = newOrderV3Accounts.Bind(accounts)
	default:
		return nil, fmt.Errorf("render: unsupported instruction type %T", ix)
	}

	return &common.DecodedInstruction{
		Name:     ix.Discriminant().String(),
		Data:     data,
		Accounts: bound,
	}, nil
}

// ownerKey reassembles the owner pubkey from its little-endian u64 words.
func ownerKey(words [4]uint64) solana.PublicKey {
	var pk solana.PublicKey
	for i, w := range words {
		for j := 0; j < 8; j++ {
			pk[i*8+j] = byte(w >> (8 * j))
		}
	}
	return pk
}

// Decode unpacks data and renders it against the instruction accounts.
func Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	parsed, err := Unpack(ix.Data)
	if err != nil {
		return nil, err
	}
	return Render(parsed, ix.Accounts)
}
