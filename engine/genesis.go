package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ruteri/certificate-manager/governance"
	"github.com/ruteri/certificate-manager/interfaces"
	"gopkg.in/yaml.v3"
)

// Genesis is the initial engine state read from a YAML file:
//
//	owner: "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
//	signers:
//	  - "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"
//	  - "0x6813Eb9362372EEF6200f3b1dbC3f819671cBA69"
//	minimum_signers: 2
//	signer_policy: strict
type Genesis struct {
	Owner          string   `yaml:"owner"`
	Signers        []string `yaml:"signers"`
	MinimumSigners int      `yaml:"minimum_signers"`
	SignerPolicy   string   `yaml:"signer_policy"`
}

// LoadGenesis decodes and validates a genesis document.
func LoadGenesis(r io.Reader) (*Genesis, error) {
	var g Genesis
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// LoadGenesisFile reads a genesis document from disk.
func LoadGenesisFile(path string) (*Genesis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening genesis file: %w", err)
	}
	defer f.Close()

	return LoadGenesis(f)
}

// Validate checks that every field parses and that the owner is set.
func (g *Genesis) Validate() error {
	owner, err := interfaces.NewIdentityFromHex(g.Owner)
	if err != nil {
		return fmt.Errorf("%w: genesis owner: %w", interfaces.ErrInvalidArgument, err)
	}
	if owner.IsZero() {
		return fmt.Errorf("%w: genesis owner must not be the zero identity", interfaces.ErrInvalidArgument)
	}

	for i, s := range g.Signers {
		if _, err := interfaces.NewIdentityFromHex(s); err != nil {
			return fmt.Errorf("%w: genesis signer %d: %w", interfaces.ErrInvalidArgument, i, err)
		}
	}

	if g.MinimumSigners < 0 {
		return fmt.Errorf("%w: genesis minimum_signers must not be negative", interfaces.ErrInvalidArgument)
	}

	if _, err := ParseSignerPolicy(g.SignerPolicy); err != nil {
		return err
	}
	return nil
}

// ParseSignerPolicy maps a policy name to a SignerPolicy. The empty string
// selects the idempotent policy.
func ParseSignerPolicy(name string) (governance.SignerPolicy, error) {
	switch name {
	case "", "idempotent":
		return governance.IdempotentSigners, nil
	case "strict":
		return governance.StrictSigners, nil
	default:
		return 0, fmt.Errorf("%w: unknown signer policy %q", interfaces.ErrInvalidArgument, name)
	}
}

// NewFromGenesis creates an engine and applies the genesis signers and
// threshold as owner operations. The resulting notifications are the first
// entries of the log.
func NewFromGenesis(g *Genesis, log *slog.Logger) (*Engine, error) {
	if g == nil {
		return nil, errors.New("nil genesis")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	owner, _ := interfaces.NewIdentityFromHex(g.Owner)
	policy, _ := ParseSignerPolicy(g.SignerPolicy)

	e, err := New(&Config{Owner: owner, SignerPolicy: policy, Log: log})
	if err != nil {
		return nil, err
	}

	for _, s := range g.Signers {
		signer, _ := interfaces.NewIdentityFromHex(s)
		if _, err := e.AddSigner(owner, signer); err != nil {
			return nil, fmt.Errorf("applying genesis signer %s: %w", s, err)
		}
	}

	if g.MinimumSigners > 0 {
		if _, err := e.SetMinimumSigners(owner, g.MinimumSigners); err != nil {
			return nil, fmt.Errorf("applying genesis minimum signers: %w", err)
		}
	}

	return e, nil
}
