package finance

import "github.com/holiman/uint256"

// mulDiv returns floor(a * b / c) computed with a 256-bit intermediate so
// the product never overflows. The quotient must fit in 64 bits.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		arithmeticPanic("div by zero", a, b, c)
	}
	q, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(a),
		uint256.NewInt(b),
		uint256.NewInt(c),
	)
	if overflow || !q.IsUint64() {
		arithmeticPanic("mul-div overflow", a, b, c)
	}
	return q.Uint64()
}

func checkedAdd(op string, a, b uint64) uint64 {
	s := a + b
	if s < a {
		arithmeticPanic(op, a, b)
	}
	return s
}

func checkedSub(op string, a, b uint64) uint64 {
	if b > a {
		arithmeticPanic(op, a, b)
	}
	return a - b
}
