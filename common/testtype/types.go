// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testtype selects which kinds of tests run, based on environment
// variables.
package testtype

import (
	"os"
	"testing"
)

const (
	// Unit tests need nothing but the Go toolchain. They run unless
	// TOOLS_TESTING_UNIT is set to "false".
	UnitTestType = "TOOLS_TESTING_UNIT"

	// Integration tests need a running mongod (see testutil). They run only
	// when TOOLS_TESTING_INTEGRATION is "true".
	IntegrationTestType = "TOOLS_TESTING_INTEGRATION"
)

// HasTestType returns true if the test type is enabled in the environment.
func HasTestType(testType string) bool {
	envVal := os.Getenv(testType)
	if testType == UnitTestType {
		return envVal != "false"
	}
	return envVal == "true"
}

// SkipUnlessTestType skips the test if its type is not enabled.
func SkipUnlessTestType(t *testing.T, testType string) {
	if !HasTestType(testType) {
		t.SkipNow()
	}
}
