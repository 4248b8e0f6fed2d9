package common

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/gagliardetto/solana-go"
)

// Instruction is the normalized form every decoder consumes: binary program
// id, ordered account keys and the raw data bytes.
type Instruction struct {
	ProgramID   solana.PublicKey
	Accounts    []solana.PublicKey
	Data        []byte
	StackHeight *uint32
}

// Fingerprint hashes the program, accounts and data. Stack height is not part
// of the decoded output so it is left out.
func (ix Instruction) Fingerprint() string {
	h := sha256.New()
	h.Write(ix.ProgramID[:])
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(ix.Accounts)))
	h.Write(n[:])
	for _, acc := range ix.Accounts {
		h.Write(acc[:])
	}
	h.Write(ix.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// DecodedInstruction is the rendered result returned to callers.
type DecodedInstruction struct {
	Name     string         `json:"name"`
	Data     map[string]any `json:"data"`
	Accounts map[string]any `json:"accounts"`
}

// AccountTemplate names instruction accounts by position. Trailing optional
// accounts are only named when present.
type AccountTemplate struct {
	Names []string
	// Rest collects accounts beyond Names under a single key when set.
	Rest string
}

// Bind maps accounts onto the template. Accounts past the named slots are
// grouped under Rest, or under "remaining_accounts" when Rest is empty.
func (t AccountTemplate) Bind(accounts []solana.PublicKey) map[string]any {
	out := make(map[string]any, len(accounts))
	for i, acc := range accounts {
		if i >= len(t.Names) {
			break
		}
		out[t.Names[i]] = acc.String()
	}
	if len(accounts) > len(t.Names) {
		key := t.Rest
		if key == "" {
			key = "remaining_accounts"
		}
		extra := make([]string, 0, len(accounts)-len(t.Names))
		for _, acc := range accounts[len(t.Names):] {
			extra = append(extra, acc.String())
		}
		out[key] = extra
	}
	return out
}
