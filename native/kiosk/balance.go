package kiosk

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Coin is a detached amount of fungible value moving into or out of a kiosk
// pool.
type Coin struct {
	value uint256.Int
}

// NewCoin wraps the supplied amount. A nil amount yields a zero coin.
func NewCoin(amount *uint256.Int) Coin {
	var c Coin
	if amount != nil {
		c.value.Set(amount)
	}
	return c
}

func CoinFromUint64(amount uint64) Coin { return NewCoin(uint256.NewInt(amount)) }

// CoinFromBig converts a non-negative big integer into a coin.
func CoinFromBig(amount *big.Int) (Coin, error) {
	if amount == nil {
		return Coin{}, nil
	}
	if amount.Sign() < 0 {
		return Coin{}, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return Coin{}, fmt.Errorf("%w: %s", ErrOverflow, amount)
	}
	return NewCoin(v), nil
}

// Value returns a copy of the coin's amount.
func (c Coin) Value() *uint256.Int { return c.value.Clone() }

// Big returns the coin's amount as a big integer.
func (c Coin) Big() *big.Int { return c.value.ToBig() }

func (c Coin) IsZero() bool { return c.value.IsZero() }

// Balance is a pool of fungible value owned by a kiosk.
type Balance struct {
	value uint256.Int
}

// Value returns a copy of the pooled amount.
func (b *Balance) Value() *uint256.Int { return b.value.Clone() }

// Join adds the coin to the pool. On overflow the pool is left untouched.
func (b *Balance) Join(c Coin) error {
	sum, overflow := new(uint256.Int).AddOverflow(&b.value, &c.value)
	if overflow {
		return ErrOverflow
	}
	b.value.Set(sum)
	return nil
}

// canJoin reports whether Join would succeed without mutating the pool.
func (b *Balance) canJoin(c Coin) bool {
	_, overflow := new(uint256.Int).AddOverflow(&b.value, &c.value)
	return !overflow
}

// Split removes amount from the pool and returns it as a coin.
func (b *Balance) Split(amount *uint256.Int) (Coin, error) {
	if amount == nil {
		return Coin{}, fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	if b.value.Lt(amount) {
		return Coin{}, ErrInsufficientFunds
	}
	b.value.Sub(&b.value, amount)
	return NewCoin(amount), nil
}

// WithdrawAll empties the pool.
func (b *Balance) WithdrawAll() Coin {
	out := NewCoin(&b.value)
	b.value.Clear()
	return out
}
