package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

var (
	// Initialize shares the Initialize2 layout.
	initialize2Accounts = common.AccountTemplate{Names: []string{
		"token_program",
		"associated_token_program",
		"system_program",
		"rent",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"lp_mint",
		"coin_mint",
		"pc_mint",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"amm_target_orders",
		"amm_config",
		"create_fee_destination",
		"serum_program",
		"serum_market",
		"user_wallet",
		"user_token_coin",
		"user_token_pc",
		"user_lp_token_account",
	}}

	monitorStepAccounts = common.AccountTemplate{Names: []string{
		"token_program",
		"rent",
		"clock",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"amm_target_orders",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"serum_program",
		"serum_market",
		"serum_coin_vault_account",
		"serum_pc_vault_account",
		"serum_vault_signer",
		"serum_request_queue",
		"serum_event_queue",
		"serum_bids",
		"serum_asks",
		"srm_token_account",
		"referrer_pc_account",
	}}

	depositAccounts = common.AccountTemplate{Names: []string{
		"token_program",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"amm_target_orders",
		"lp_mint",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"serum_market",
		"user_coin_token_account",
		"user_pc_token_account",
		"user_lp_token_account",
		"user_owner",
		"serum_event_queue",
	}}

	withdrawAccounts = common.AccountTemplate{Names: []string{
		"token_program",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"amm_target_orders",
		"lp_mint",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"serum_program",
		"serum_market",
		"serum_coin_vault_account",
		"serum_pc_vault_account",
		"serum_vault_signer",
		"user_lp_token_account",
		"user_coin_token_account",
		"user_pc_token_account",
		"user_owner",
		"serum_event_queue",
		"serum_bids",
		"serum_asks",
	}}

	migrateAccounts = common.AccountTemplate{Names: []string{
		"token_program",
		"system_program",
		"rent",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"amm_target_orders",
		"serum_program",
		"serum_market",
		"serum_bids",
		"serum_asks",
		"serum_event_queue",
		"serum_coin_vault_account",
		"serum_pc_vault_account",
		"serum_vault_signer",
		"new_amm_open_orders",
		"new_serum_program",
		"new_serum_market",
		"admin",
	}}

	swapAccountsWithTarget = common.AccountTemplate{Names: []string{
		"token_program",
		"amm",
		"amm_authority",
		"amm_open_orders",
		"amm_target_orders",
		"pool_coin_token_account",
		"pool_pc_token_account",
		"serum_program",
		"serum_market",
		"serum_bids",
		"serum_asks",
		"serum_event_queue",
		"serum_coin_vault_account",
		"serum_pc_vault_account",
		"serum_vault_signer",
		"user_source_token_account",
		"user_destination_token_account",
		"user_source_owner",
	}}

	swapAccounts = common.AccountTemplate{Names: withoutIndex(swapAccountsWithTarget.Names, 4)}
)

// SwapAccountsWithTarget is the account count of the swap form that still
// passes amm_target_orders.
const SwapAccountsWithTarget = 18

func withoutIndex(names []string, idx int) []string {
	out := make([]string, 0, len(names)-1)
	out = append(out, names[:idx]...)
	return append(out, names[idx+1:]...)
}

// swapTemplate picks the account layout by count alone.
func swapTemplate(n int) common.AccountTemplate {
	// Lists longer than 18 bind as the 18-account form; extras go to remaining_accounts.
	if n >= SwapAccountsWithTarget {
		return swapAccountsWithTarget
	}
	return swapAccounts
}

// Render produces the named, JSON-ready form of an AMM instruction.
// Administrative and simulation variants decode but are not rendered.
func Render(ix Instruction, accounts []solana.PublicKey) (*common.DecodedInstruction, error) {
	if ix == nil {
		return nil, common.Payloadf("nil instruction")
	}
	var (
		data map[string]any
		tmpl common.AccountTemplate
	)

	switch v := ix.(type) {
	case Initialize:
		data = map[string]any{
			"nonce":     v.Nonce,
			"open_time": v.OpenTime,
		}
		tmpl = initialize2Accounts
	case Initialize2:
		data = map[string]any{
			"nonce":            v.Nonce,
			"open_time":        v.OpenTime,
			"init_pc_amount":   v.InitPcAmount,
			"init_coin_amount": v.InitCoinAmount,
		}
		tmpl = initialize2Accounts
	case MonitorStep:
		data = map[string]any{
			"plan_order_limit":   v.PlanOrderLimit,
			"place_order_limit":  v.PlaceOrderLimit,
			"cancel_order_limit": v.CancelOrderLimit,
		}
		tmpl = monitorStepAccounts
	case Deposit:
		data = map[string]any{
			"max_coin_amount": v.MaxCoinAmount,
			"max_pc_amount":   v.MaxPcAmount,
			"base_side":       v.BaseSide,
		}
		tmpl = depositAccounts
	case Withdraw:
		data = map[string]any{"amount": v.Amount}
		tmpl = withdrawAccounts
	case MigrateToOpenBook:
		data = map[string]any{}
		tmpl = migrateAccounts
	case SwapBaseIn:
		data = map[string]any{
			"amount_in":          v.AmountIn,
			"minimum_amount_out": v.MinimumAmountOut,
		}
		tmpl = swapTemplate(len(accounts))
	case SwapBaseOut:
		data = map[string]any{
			"max_amount_in": v.MaxAmountIn,
			"amount_out":    v.AmountOut,
		}
		tmpl = swapTemplate(len(accounts))
	case SetParams, WithdrawPnl, WithdrawSrm, PreInitialize, SimulateInfo,
		AdminCancelOrders, CreateConfigAccount, UpdateConfigAccount:
		return nil, fmt.Errorf("%s: %w", ix.Tag(), common.ErrUnimplemented)
	default:
		return nil, fmt.Errorf("render: unsupported instruction type %T", ix)
	}

	return &common.DecodedInstruction{
		Name:     ix.Tag().String(),
		Data:     data,
		Accounts: tmpl.Bind(accounts),
	}, nil
}

// Decode unpacks data and renders it against the instruction accounts.
func Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	parsed, err := Unpack(ix.Data)
	if err != nil {
		return nil, err
	}
	return Render(parsed, ix.Accounts)
}
