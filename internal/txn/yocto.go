package txn

import (
	"fmt"
	"math/big"
	"strings"
)

// yoctoDecimals is the NEAR token precision: 1 NEAR = 10^24 yoctoNEAR.
const yoctoDecimals = 24

// NEARToYocto converts a decimal NEAR amount ("2.5") to its integer
// yoctoNEAR string ("2500000000000000000000000"). Amounts are handled as
// exact decimal strings; floats never enter the conversion.
func NEARToYocto(amount string) (string, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(amount, "-") {
		return "", fmt.Errorf("negative amount %q", amount)
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > yoctoDecimals {
		return "", fmt.Errorf("amount %q has more than %d decimal places", amount, yoctoDecimals)
	}
	digits := whole + frac + strings.Repeat("0", yoctoDecimals-len(frac))

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return "", fmt.Errorf("amount %q is not a valid number", amount)
	}
	return n.String(), nil
}

// YoctoToNEAR converts an integer yoctoNEAR string back to a decimal NEAR
// string with trailing zeros trimmed.
func YoctoToNEAR(yocto string) (string, error) {
	n, ok := parseYocto(yocto)
	if !ok {
		return "", fmt.Errorf("invalid yocto amount %q", yocto)
	}

	s := n.String()
	if len(s) <= yoctoDecimals {
		s = strings.Repeat("0", yoctoDecimals-len(s)+1) + s
	}
	whole := s[:len(s)-yoctoDecimals]
	frac := strings.TrimRight(s[len(s)-yoctoDecimals:], "0")
	if frac == "" {
		return whole, nil
	}
	return whole + "." + frac, nil
}

func parseYocto(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
