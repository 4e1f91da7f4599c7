package authgate

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeTTL is how long a verification code stays redeemable. Expiry is checked
// lazily at verification time; no background eviction runs.
const CodeTTL = 10 * time.Minute

var codeRange = big.NewInt(900000)

// GenerateVerificationCode produces a 6-digit code uniformly distributed over
// 100000–999999. crypto/rand.Int is unbiased, so no rejection loop is needed
// beyond what it does internally.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
