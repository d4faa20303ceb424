// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"fmt"
	"math"
)

// ToInt converts any Go number to an int. Floats with a fractional part or
// values out of range are rejected.
func ToInt(number interface{}) (int, error) {
	switch n := number.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, fmt.Errorf("%v is out of range for an int", n)
		}
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, fmt.Errorf("cannot convert %v (type %T) to an int", number, number)
}

// floatToInt applies the same range as the int64 case. 2^63 is not
// representable as an int64, so the upper bound is exclusive.
func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is not an integer in range", f)
	}
	return ToInt(int64(f))
}
