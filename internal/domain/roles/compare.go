package roles

import (
	"bytes"

	"github.com/holiman/uint256"
)

// Compare evaluates value against a scoped parameter rule. It returns nil on
// a match, or the rejection naming the comparison that failed.
func Compare(value []byte, p ParamConfig) error {
	switch p.Comparison {
	case EqualTo:
		if len(p.CompValues) != 1 || !bytes.Equal(value, p.CompValues[0]) {
			return ErrParameterNotAllowed
		}
		return nil
	case GreaterThan:
		if len(p.CompValues) != 1 || compareUint(value, p.CompValues[0]) <= 0 {
			return ErrParameterLessThanAllowed
		}
		return nil
	case LessThan:
		if len(p.CompValues) != 1 || compareUint(value, p.CompValues[0]) >= 0 {
			return ErrParameterGreaterThanAllowed
		}
		return nil
	case OneOf:
		for _, v := range p.CompValues {
			if bytes.Equal(value, v) {
				return nil
			}
		}
		return ErrParameterNotOneOfAllowed
	default:
		return ErrParameterNotAllowed
	}
}

// compareUint compares two 32-byte big-endian words as unsigned integers.
func compareUint(a, b []byte) int {
	var x, y uint256.Int
	x.SetBytes(a)
	y.SetBytes(b)
	return x.Cmp(&y)
}
