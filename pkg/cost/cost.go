// Package cost converts asset sizes and retention durations into the
// settlement-currency amount the storage network charges, and the
// native-currency amount needed to acquire it. All arithmetic is integer;
// a rounding error toward zero would under-fund a transaction the network
// rejects outright.
package cost

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrZeroExchangeDen = errors.New("cost: exchange denominator is zero")
	ErrOverflow        = errors.New("cost: amount overflows uint64")
)

// Estimator holds the externally supplied pricing parameters for one
// session. Rates come from configuration, never from constants in the
// pipeline.
type Estimator struct {
	// RatePerByteEpoch is the settlement-currency price per byte per epoch.
	RatePerByteEpoch uint64
	// ExchangeNum/ExchangeDen is the native-per-settlement exchange rate
	// as a fraction, e.g. 2/1 when two native units buy one settlement unit.
	ExchangeNum uint64
	ExchangeDen uint64
	// BufferBps is the safety margin in basis points applied to the
	// funding amount to absorb rounding and price drift.
	BufferBps uint64
}

// StorageCost returns the settlement amount for storing size bytes over
// the given number of epochs.
func (e Estimator) StorageCost(size, epochs uint64) (uint64, error) {
	perEpoch, err := mul(size, e.RatePerByteEpoch)
	if err != nil {
		return 0, fmt.Errorf("size x rate: %w", err)
	}
	total, err := mul(perEpoch, epochs)
	if err != nil {
		return 0, fmt.Errorf("x epochs: %w", err)
	}
	return total, nil
}

// FundingAmount returns the native-currency amount to convert so the
// exchange step yields at least the settlement amount, plus the buffer.
// The result is always >= rate x settlement, and the buffer strictly
// increases any non-zero base amount when BufferBps > 0.
func (e Estimator) FundingAmount(settlement uint64) (uint64, error) {
	if e.ExchangeDen == 0 {
		return 0, ErrZeroExchangeDen
	}

	scaled, err := mul(settlement, e.ExchangeNum)
	if err != nil {
		return 0, fmt.Errorf("x exchange rate: %w", err)
	}
	base := ceilDiv(scaled, e.ExchangeDen)

	margin, err := mul(base, e.BufferBps)
	if err != nil {
		return 0, fmt.Errorf("x buffer: %w", err)
	}
	buffer := ceilDiv(margin, 10_000)

	funded := base + buffer
	if funded < base {
		return 0, ErrOverflow
	}
	return funded, nil
}

func mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// ceilDiv rounds up without the (a + b - 1) shortcut, which wraps for
// large a and would silently under-fund.
func ceilDiv(a, b uint64) uint64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
