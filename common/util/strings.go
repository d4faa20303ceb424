// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "regexp"

var credentialsRegexp = regexp.MustCompile(`^(mongodb(?:\+srv)?://)[^/?]*@`)

const redacted = "[**REDACTED**]"

// SanitizeURI redacts any userinfo section of a connection string so it can
// be logged.
func SanitizeURI(uri string) string {
	return credentialsRegexp.ReplaceAllString(uri, "${1}"+redacted+"@")
}

// Pluralize takes an amount and two strings denoting the singular
// and plural noun the amount represents. If the amount is singular,
// the singular form is returned; otherwise plural is returned.
func Pluralize(amount int64, singular, plural string) string {
	if amount == 1 {
		return singular
	}
	return plural
}
