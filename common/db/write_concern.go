// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mongodb-labs/bulkmodify/common/log"
	"github.com/mongodb-labs/bulkmodify/common/util"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/yaml.v2"
)

// write concern fields.
const (
	j         = "j"
	w         = "w"
	wTimeout  = "wtimeout"
	majString = "majority"
)

// NewMongoWriteConcern takes a string (from the command line writeConcern option) and a ConnString object
// (from the command line uri option) and returns a WriteConcern. If both are provided, preference is given to
// the command line writeConcern option. If neither is provided, the default 'majority' write concern is constructed.
func NewMongoWriteConcern(
	writeConcern string,
	cs *connstring.ConnString,
) (wc *writeconcern.WriteConcern, err error) {

	// Log whatever write concern was generated
	defer func() {
		if wc != nil {
			log.Logvf(log.Info, "using write concern: w=%v, j=%v, wtimeout=%v",
				wc.W, lo.FromPtr(wc.Journal), wc.WTimeout)
		}
	}()

	if writeConcern == "" && cs != nil {
		return constructWCFromConnString(cs)
	}

	return constructWCFromString(writeConcern)
}

// constructWCFromConnString takes in a parsed connection string and
// extracts values from it. If the ConnString has no write concern value, it defaults
// to 'majority'.
func constructWCFromConnString(cs *connstring.ConnString) (*writeconcern.WriteConcern, error) {
	wc := &writeconcern.WriteConcern{}

	switch {
	case cs.WNumberSet:
		if cs.WNumber < 0 {
			return nil, fmt.Errorf("invalid 'w' argument: %v", cs.WNumber)
		}

		wc.W = cs.WNumber
	case cs.WString != "":
		wc.W = cs.WString
	default:
		wc.W = majString
	}

	if cs.JSet && cs.J {
		wc.Journal = lo.ToPtr(true)
	}
	if cs.WTimeoutSet {
		wc.WTimeout = cs.WTimeout
	}

	return wc, nil
}

// constructWCFromString takes in a write concern and attempts to
// extract values from it. It returns an error if it is unable to parse the
// string or if a parsed write concern field value is invalid.
func constructWCFromString(writeConcern string) (*writeconcern.WriteConcern, error) {

	// Default case
	if writeConcern == "" {
		return &writeconcern.WriteConcern{W: majString}, nil
	}

	// Try to unmarshal as a document. The YAML flow syntax accepts both
	// {"w": 1} and {w: 1}.
	docWriteConcern := map[string]interface{}{}
	err := yaml.Unmarshal([]byte(writeConcern), &docWriteConcern)
	if err == nil {
		return parseDocWriteConcern(docWriteConcern)
	}

	// If parsing fails, try to parse it as a plain string instead. This
	// allows the entire argument passed in to be assigned to the 'w' field,
	// thus allowing users to pass a write concern that looks like:
	// "majority", 0, "4", etc.
	wOpt, err := parseModeString(writeConcern)
	if err != nil {
		return nil, err
	}

	return &writeconcern.WriteConcern{W: wOpt}, nil
}

// parseDocWriteConcern converts a map representing a write concern object into a WriteConcern.
func parseDocWriteConcern(docWriteConcern map[string]interface{}) (*writeconcern.WriteConcern, error) {
	wc := &writeconcern.WriteConcern{}

	// Construct new options from 'w', if it exists; otherwise default to 'majority'
	if wVal, ok := docWriteConcern[w]; ok {
		rawW, err := parseWField(wVal)
		if err != nil {
			return nil, err
		}

		wc.W = rawW
	} else {
		wc.W = majString
	}

	// Journal option
	if jVal, ok := docWriteConcern[j]; ok && util.IsTruthy(jVal) {
		wc.Journal = lo.ToPtr(true)
	}

	// Wtimeout option
	if wtimeout, ok := docWriteConcern[wTimeout]; ok {
		timeoutVal, err := util.ToInt(wtimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid '%v' argument: %v", wTimeout, wtimeout)
		}
		// wtimeout is given in milliseconds
		wc.WTimeout = time.Duration(timeoutVal) * time.Millisecond
	}

	return wc, nil
}

func parseWField(wValue interface{}) (interface{}, error) {
	// Try parsing as int
	if wNumber, err := util.ToInt(wValue); err == nil {
		return parseModeNumber(wNumber)
	}

	// Try parsing as string
	if wStrVal, ok := wValue.(string); ok {
		return parseModeString(wStrVal)
	}

	return nil, fmt.Errorf("invalid 'w' argument type: %v has type %T", wValue, wValue)
}

// Given an integer, returns a write concern object or error.
func parseModeNumber(wNumber int) (interface{}, error) {
	if wNumber < 0 {
		return nil, fmt.Errorf("invalid 'w' argument: %v", wNumber)
	}

	return wNumber, nil
}

// Given a string, returns a write concern object or error.
func parseModeString(wString string) (interface{}, error) {
	// Default case
	if wString == "" {
		return majString, nil
	}

	// Try parsing as number before treating as just a string
	if wNumber, err := strconv.Atoi(wString); err == nil {
		return parseModeNumber(wNumber)
	}

	return wString, nil
}
