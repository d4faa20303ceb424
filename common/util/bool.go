// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IsTruthy returns true for values the server treats as "true". Only false,
// nil, numeric zero, and undefined are falsy; empty strings, documents and
// arrays are truthy.
func IsTruthy(val interface{}) bool {
	if val == nil {
		return false
	}
	if _, ok := val.(primitive.Undefined); ok {
		return false
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0
	}
	return true
}
