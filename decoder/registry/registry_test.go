package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/raydium"
	"github.com/rexbrahh/ix-decoder/decoder/serum"
)

func swapInstruction(t *testing.T) common.Instruction {
	t.Helper()
	data, err := raydium.Pack(raydium.SwapBaseIn{AmountIn: 10, MinimumAmountOut: 9})
	require.NoError(t, err)
	accounts := make([]solana.PublicKey, 17)
	for i := range accounts {
		accounts[i][0] = byte(i + 1)
	}
	return common.Instruction{ProgramID: raydium.ProgramKey, Accounts: accounts, Data: data}
}

func serumInstruction(t *testing.T) common.Instruction {
	t.Helper()
	data, err := serum.Pack(serum.MatchOrders{Limit: 3})
	require.NoError(t, err)
	return common.Instruction{ProgramID: serum.ProgramKey, Data: data}
}

func TestDefaultRegistryDecodesAMM(t *testing.T) {
	reg := NewDefault()
	require.Equal(t, []Program{ProgramRaydiumAMM}, reg.Programs())

	d, err := reg.Resolve(swapInstruction(t))
	require.NoError(t, err)
	require.Equal(t, ProgramRaydiumAMM, d.Program())

	out, err := d.Decode()
	require.NoError(t, err)
	require.Equal(t, "swapBaseIn", out.Name)
}

func TestDefaultRegistryLeavesSerumUnrecognized(t *testing.T) {
	_, err := NewDefault().Resolve(serumInstruction(t))
	require.ErrorIs(t, err, common.ErrUnrecognized)
}

func TestForProgramsEnablesSerum(t *testing.T) {
	reg, err := ForPrograms(ProgramRaydiumAMM, ProgramSerumDEX, ProgramRaydiumAMM)
	require.NoError(t, err)
	require.Equal(t, []Program{ProgramRaydiumAMM, ProgramSerumDEX}, reg.Programs())
	require.True(t, reg.Supports(serum.ProgramKey))

	out, err := reg.Decode(serumInstruction(t))
	require.NoError(t, err)
	require.Equal(t, "matchOrders", out.Name)
	require.Equal(t, uint16(3), out.Data["limit"])
}

func TestDecodeErrorsCarryProgram(t *testing.T) {
	ix := swapInstruction(t)
	ix.Data = []byte{42}

	_, err := NewDefault().Decode(ix)
	require.ErrorIs(t, err, common.ErrMalformedPayload)

	var decodeErr *common.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, "raydium_amm_v4", decodeErr.Program)
}

func TestUnimplementedSurfaces(t *testing.T) {
	ix := swapInstruction(t)
	ix.Data = []byte{byte(raydium.TagWithdrawPnl)}
	_, err := NewDefault().Decode(ix)
	require.ErrorIs(t, err, common.ErrUnimplemented)
}

func TestUnregisteredProgramRejectsAnyPayload(t *testing.T) {
	swap := swapInstruction(t)
	stranger := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	reg, err := ForPrograms(ProgramRaydiumAMM, ProgramSerumDEX)
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"empty":           nil,
		"single byte":     {0},
		"valid amm swap":  swap.Data,
		"valid amm tag":   {byte(raydium.TagSwapBaseIn)},
		"serum header":    serumInstruction(t).Data,
		"arbitrary bytes": {0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03},
	} {
		t.Run(name, func(t *testing.T) {
			ix := common.Instruction{ProgramID: stranger, Accounts: swap.Accounts, Data: data}
			for _, r := range []*Registry{NewDefault(), reg} {
				d, err := r.Resolve(ix)
				require.ErrorIs(t, err, common.ErrUnrecognized)
				require.Nil(t, d)

				_, err = r.Decode(ix)
				require.ErrorIs(t, err, common.ErrUnrecognized)
			}
		})
	}
}

func TestEmptyRegistry(t *testing.T) {
	_, err := New().Resolve(swapInstruction(t))
	require.ErrorIs(t, err, common.ErrUnrecognized)
}

type fakeMatcher struct {
	calls int
}

func (f *fakeMatcher) Program() Program                 { return ProgramSerumDEX }
func (f *fakeMatcher) Match(ix common.Instruction) bool { return true }
func (f *fakeMatcher) Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	f.calls++
	return &common.DecodedInstruction{Name: "fake"}, nil
}

func TestFirstMatchWins(t *testing.T) {
	first := &fakeMatcher{}
	second := &fakeMatcher{}
	reg := New(first, second)

	out, err := reg.Decode(swapInstruction(t))
	require.NoError(t, err)
	require.Equal(t, "fake", out.Name)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 0, second.calls)
}

func TestParseProgram(t *testing.T) {
	p, err := ParseProgram("serum_dex_v3")
	require.NoError(t, err)
	require.Equal(t, ProgramSerumDEX, p)

	p, err = ParseProgram(raydium.ProgramID)
	require.NoError(t, err)
	require.Equal(t, ProgramRaydiumAMM, p)

	_, err = ParseProgram("orca")
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(envPrograms, "")
	t.Setenv(envProgramsFile, "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	t.Setenv(envPrograms, "raydium_amm_v4, serum_dex_v3")
	cfg, err = FromEnv()
	require.NoError(t, err)
	require.Equal(t, []Program{ProgramRaydiumAMM, ProgramSerumDEX}, cfg.Programs)

	t.Setenv(envPrograms, "unknown")
	_, err = FromEnv()
	require.Error(t, err)
}

func TestLoadProgramsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "programs.yaml")
	content := "programs:\n  serum_dex_v3: " + serum.ProgramID + "\n  raydium_amm_v4: \"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	programs, err := LoadProgramsFile(path)
	require.NoError(t, err)
	require.Equal(t, []Program{ProgramRaydiumAMM, ProgramSerumDEX}, programs)

	t.Setenv(envProgramsFile, path)
	cfg, err := FromEnv()
	require.NoError(t, err)
	reg, err := cfg.Build()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"raydium_amm_v4": raydium.ProgramID,
		"serum_dex_v3":   serum.ProgramID,
	}, reg.Filters())
}

func TestLoadProgramsFileRejectsMismatchedAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programs.yaml")
	content := "programs:\n  serum_dex_v3: " + raydium.ProgramID + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadProgramsFile(path)
	require.Error(t, err)
}
