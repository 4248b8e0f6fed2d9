// Package registry resolves normalized instructions to the program decoder
// that understands them.
package registry

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/raydium"
	"github.com/rexbrahh/ix-decoder/decoder/serum"
)

// Program is the closed set of decodable programs.
type Program int

const (
	ProgramRaydiumAMM Program = iota + 1
	ProgramSerumDEX
)

var programNames = map[Program]string{
	ProgramRaydiumAMM: "raydium_amm_v4",
	ProgramSerumDEX:   "serum_dex_v3",
}

func (p Program) String() string {
	if name, ok := programNames[p]; ok {
		return name
	}
	return fmt.Sprintf("program(%d)", int(p))
}

// ID returns the on-chain program address.
func (p Program) ID() solana.PublicKey {
	switch p {
	case ProgramRaydiumAMM:
		return raydium.ProgramKey
	case ProgramSerumDEX:
		return serum.ProgramKey
	default:
		return solana.PublicKey{}
	}
}

// ParseProgram accepts a program name or its base58 address.
func ParseProgram(s string) (Program, error) {
	for p, name := range programNames {
		if s == name || s == p.ID().String() {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown program %q", s)
}

// Matcher claims instructions for one program and decodes them.
type Matcher interface {
	Program() Program
	Match(ix common.Instruction) bool
	Decode(ix common.Instruction) (*common.DecodedInstruction, error)
}

// Decodable pairs a claimed instruction with the matcher that claimed it.
type Decodable struct {
	matcher Matcher
	ix      common.Instruction
}

func (d *Decodable) Program() Program { return d.matcher.Program() }

func (d *Decodable) Instruction() common.Instruction { return d.ix }

// Decode renders the instruction. Failures carry the program name.
func (d *Decodable) Decode() (*common.DecodedInstruction, error) {
	out, err := d.matcher.Decode(d.ix)
	if err != nil {
		return nil, &common.DecodeError{Program: d.Program().String(), Err: err}
	}
	return out, nil
}

// Registry is an ordered list of matchers; the first match wins.
type Registry struct {
	matchers []Matcher
}

// New builds a registry from explicit matchers.
func New(matchers ...Matcher) *Registry {
	return &Registry{matchers: append([]Matcher(nil), matchers...)}
}

// NewDefault registers the Raydium AMM only. Serum is opt-in through
// ForPrograms or configuration.
func NewDefault() *Registry {
	return New(RaydiumMatcher{})
}

// ForPrograms builds a registry containing the listed programs in order.
func ForPrograms(programs ...Program) (*Registry, error) {
	matchers := make([]Matcher, 0, len(programs))
	seen := make(map[Program]bool, len(programs))
	for _, p := range programs {
		if seen[p] {
			continue
		}
		seen[p] = true
		m, err := MatcherFor(p)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return New(matchers...), nil
}

// MatcherFor returns the built-in matcher for a program.
func MatcherFor(p Program) (Matcher, error) {
	switch p {
	case ProgramRaydiumAMM:
		return RaydiumMatcher{}, nil
	case ProgramSerumDEX:
		return SerumMatcher{}, nil
	default:
		return nil, fmt.Errorf("no matcher for %s", p)
	}
}

// Resolve finds the matcher for ix.
func (r *Registry) Resolve(ix common.Instruction) (*Decodable, error) {
	for _, m := range r.matchers {
		if m.Match(ix) {
			return &Decodable{matcher: m, ix: ix}, nil
		}
	}
	return nil, fmt.Errorf("%w: program %s", common.ErrUnrecognized, ix.ProgramID)
}

// Decode resolves and decodes in one step.
func (r *Registry) Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	d, err := r.Resolve(ix)
	if err != nil {
		return nil, err
	}
	return d.Decode()
}

// Supports reports whether any matcher owns programID.
func (r *Registry) Supports(programID solana.PublicKey) bool {
	for _, m := range r.matchers {
		if m.Program().ID().Equals(programID) {
			return true
		}
	}
	return false
}

// Programs lists registered programs in resolution order.
func (r *Registry) Programs() []Program {
	out := make([]Program, 0, len(r.matchers))
	for _, m := range r.matchers {
		out = append(out, m.Program())
	}
	return out
}

// RaydiumMatcher claims instructions addressed to the AMM v4 program.
type RaydiumMatcher struct{}

func (RaydiumMatcher) Program() Program { return ProgramRaydiumAMM }

func (RaydiumMatcher) Match(ix common.Instruction) bool {
	return ix.ProgramID.Equals(raydium.ProgramKey)
}

func (RaydiumMatcher) Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	return raydium.Decode(ix)
}

// SerumMatcher claims instructions addressed to the DEX v3 program.
type SerumMatcher struct{}

func (SerumMatcher) Program() Program { return ProgramSerumDEX }

func (SerumMatcher) Match(ix common.Instruction) bool {
	return ix.ProgramID.Equals(serum.ProgramKey)
}

func (SerumMatcher) Decode(ix common.Instruction) (*common.DecodedInstruction, error) {
	return serum.Decode(ix)
}
