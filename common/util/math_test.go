// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"math"
	"testing"

	"github.com/mongodb-labs/bulkmodify/common/testtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToInt(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	for _, number := range []interface{}{
		int(5), int8(5), int16(5), int32(5), int64(5), uint8(5), uint16(5), uint32(5), float32(5), float64(5),
	} {
		n, err := ToInt(number)
		require.NoError(t, err, "%T", number)
		assert.Equal(t, 5, n, "%T", number)
	}

	n, err := ToInt(float64(1 << 40))
	require.NoError(t, err, "floats share the int64 range")
	assert.Equal(t, 1<<40, n)

	n, err = ToInt(float64(math.MinInt64))
	require.NoError(t, err)
	assert.EqualValues(t, int64(math.MinInt64), n)

	for _, bad := range []interface{}{1.5, math.Inf(1), float64(math.MaxInt64), "5", nil, true} {
		_, err := ToInt(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestJSTruthyValues(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	trueCases := []interface{}{
		// some edge cases
		true,
		map[string]interface{}(nil),
		map[string]interface{}{"a": 1},
		[]byte(nil),
		"",
		math.NaN(),

		// normal cases
		[]int{1, 2, 3},
		"false",
		25,
		25.1,
		struct{ A int }{A: 12},
	}

	falseCases := []interface{}{
		false,
		0,
		float64(0),
		nil,
		primitive.Undefined{},
	}

	for _, val := range trueCases {
		assert.True(t, IsTruthy(val), "%v -> true", val)
	}
	for _, val := range falseCases {
		assert.False(t, IsTruthy(val), "%v -> false", val)
	}
}
