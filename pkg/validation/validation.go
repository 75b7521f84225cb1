package validation

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateWallet checks that addr is a 20-byte hex wallet address.
func ValidateWallet(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid wallet address %q: expected 0x followed by 40 hex characters", addr)
	}
	return nil
}

// NormalizeWallet returns the EIP-55 checksummed form of addr.
func NormalizeWallet(addr string) string {
	return common.HexToAddress(strings.TrimSpace(addr)).Hex()
}

// ValidateAndNormalizeWallet validates a wallet address and returns its checksummed form
func ValidateAndNormalizeWallet(addr string) (string, error) {
	if err := ValidateWallet(addr); err != nil {
		return "", err
	}
	return NormalizeWallet(addr), nil
}

// NormalizeEmail lower-cases and trims an email address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email cannot be empty")
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", fmt.Errorf("invalid email address %q", email)
	}
	return email, nil
}
