package prover

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"por-go/internal/por"
)

const manifestFile = "final_proof.json"

// zkFieldOrder is the Goldilocks prime 2^64 - 2^32 + 1 used by the proof
// system. Public inputs are residues of this field.
var zkFieldOrder, _ = new(big.Int).SetString("18446744069414584321", 10)

type assetDecimals struct {
	BalanceDecimals int `json:"balance_decimals"`
	USDTDecimals    int `json:"usdt_decimals"`
}

type rawManifest struct {
	Timestamp     int64           `json:"timestamp"`
	ProverVersion string          `json:"prover_version"`
	AssetNames    []string        `json:"asset_names"`
	AssetDecimals []assetDecimals `json:"asset_decimals"`
	Proof         struct {
		PublicInputs []json.Number `json:"public_inputs"`
	} `json:"proof"`
}

// ManifestParser reads proof manifests out of extracted archives.
type ManifestParser struct{}

var _ por.ManifestParser = ManifestParser{}

// Parse reads final_proof.json from the extract path and decodes it into a
// manifest. The proof's public inputs carry balances in the first half and
// prices in the second, one pair per asset, as residues of the ZK field.
func (ManifestParser) Parse(extractPath string) (*por.ProofManifest, error) {
	data, err := os.ReadFile(filepath.Join(extractPath, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", por.ErrExtract, manifestFile, err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", por.ErrExtract, manifestFile, err)
	}
	if raw.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", por.ErrExtract)
	}
	count := len(raw.AssetNames)
	if len(raw.AssetDecimals) != count {
		return nil, fmt.Errorf("%w: %d asset names but %d decimal entries", por.ErrExtract, count, len(raw.AssetDecimals))
	}
	if len(raw.Proof.PublicInputs) < 2*count {
		return nil, fmt.Errorf("%w: expected %d public inputs, got %d", por.ErrExtract, 2*count, len(raw.Proof.PublicInputs))
	}

	assets := make(map[string]por.Asset, count)
	for i, name := range raw.AssetNames {
		balance, err := fieldResidue(raw.Proof.PublicInputs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: balance for %s: %v", por.ErrExtract, name, err)
		}
		price, err := fieldResidue(raw.Proof.PublicInputs[count+i])
		if err != nil {
			return nil, fmt.Errorf("%w: price for %s: %v", por.ErrExtract, name, err)
		}

		dec := raw.AssetDecimals[i]
		assets[name] = por.Asset{
			Balance:    scaleDecimal(balance, dec.BalanceDecimals),
			Price:      scaleDecimal(price, dec.USDTDecimals),
			USDBalance: usdBalance(balance, price, dec.BalanceDecimals+dec.USDTDecimals),
		}
	}

	return &por.ProofManifest{
		Timestamp:     raw.Timestamp,
		ProverVersion: raw.ProverVersion,
		Assets:        assets,
	}, nil
}

// fieldResidue parses a public input and reduces it modulo the field order.
func fieldResidue(n json.Number) (*big.Int, error) {
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", n.String())
	}
	return v.Mod(v, zkFieldOrder), nil
}

// scaleDecimal renders v / 10^decimals as a decimal string with trailing
// zeros trimmed.
func scaleDecimal(v *big.Int, decimals int) string {
	if decimals <= 0 {
		return v.String()
	}
	div := pow10(decimals)
	quo, rem := new(big.Int).QuoRem(v, div, new(big.Int))
	digits := rem.String()
	if pad := decimals - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	frac := strings.TrimRight(digits, "0")
	if frac == "" {
		return quo.String()
	}
	return quo.String() + "." + frac
}

// usdBalance computes balance * price scaled down by 10^decimals, rounded up
// to two decimal places.
func usdBalance(balance, price *big.Int, decimals int) string {
	cents := new(big.Int).Mul(balance, price)
	cents.Mul(cents, big.NewInt(100))

	div := pow10(decimals)
	quo, rem := new(big.Int).QuoRem(cents, div, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}

	units, frac := new(big.Int).QuoRem(quo, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d", units.String(), frac.Int64())
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
