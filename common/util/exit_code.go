// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "fmt"

const (
	ExitSuccess int = iota
	ExitFailure
)

// ShortUsage returns the hint printed after an options error.
func ShortUsage(tool string) string {
	return fmt.Sprintf("try '%v --help' for more information", tool)
}
