package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrNotANumber     = errors.New("amount is not a number")
	ErrNonPositive    = errors.New("amount is not positive")
	ErrExceedsMaximum = errors.New("amount exceeds the maximum")
	ErrNoWallet       = errors.New("no wallet connected")
)

// ValidationError carries the rule that failed and the message shown to the user
type ValidationError struct {
	Reason  error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Validator checks requested amounts against the faucet ceiling
type Validator struct {
	Max  decimal.Decimal
	Unit string
}

// ValidateAmount validates raw against max using the default SOL unit
func ValidateAmount(raw string, max decimal.Decimal) (decimal.Decimal, error) {
	return Validator{Max: max, Unit: "SOL"}.Validate(raw)
}

// Validate applies the rules in order and returns the first failure
func (v Validator) Validate(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, &ValidationError{Reason: ErrEmptyAmount, Message: "Please enter an airdrop amount!"}
	}

	// exponents are refused before parsing; comparing "1e-1000000000" with the
	// ceiling would rescale it to a billion digits
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, &ValidationError{Reason: ErrNotANumber, Message: "Please enter a valid positive number!"}
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &ValidationError{Reason: ErrNotANumber, Message: "Please enter a valid positive number!"}
	}

	if !amount.IsPositive() {
		return decimal.Zero, &ValidationError{Reason: ErrNonPositive, Message: "Please enter a valid positive number!"}
	}

	if amount.GreaterThan(v.Max) {
		return decimal.Zero, &ValidationError{
			Reason:  ErrExceedsMaximum,
			Message: fmt.Sprintf("Maximum airdrop amount is %s %s!", v.Max.String(), v.unit()),
		}
	}

	return amount, nil
}

func (v Validator) unit() string {
	if v.Unit == "" {
		return "SOL"
	}
	return v.Unit
}

// ToLamports converts a validated amount to the smallest ledger unit, truncating fractions
func ToLamports(amount decimal.Decimal, lamportsPerUnit uint64) uint64 {
	lamports := amount.Mul(decimal.NewFromInt(int64(lamportsPerUnit))).Truncate(0)
	if !lamports.IsPositive() {
		return 0
	}
	return lamports.BigInt().Uint64()
}

// FormatUnits renders lamports in whole units rounded to places decimals
func FormatUnits(lamports uint64, lamportsPerUnit uint64, places int32) string {
	value := decimal.NewFromInt(int64(lamports)).Div(decimal.NewFromInt(int64(lamportsPerUnit)))
	return value.StringFixed(places)
}

var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// AmountField is the amount input. Only digits and at most one decimal point
// are accepted as the user types.
type AmountField struct {
	mu    sync.Mutex
	value string
}

// Set replaces the value if input passes the keystroke filter
func (f *AmountField) Set(input string) bool {
	if !amountPattern.MatchString(input) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = input
	return true
}

// Value returns the current text
func (f *AmountField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Clear empties the field
func (f *AmountField) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = ""
}
