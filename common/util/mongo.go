// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package util provides commonly used utility functions.
package util

import (
	"fmt"
	"strings"
)

const (
	InvalidDBChars         = "/\\. \"\x00$"
	InvalidCollectionChars = "$\x00"
	DefaultHost            = "localhost"
)

// SplitHostArg extracts the host slice and replica set name from a --host
// argument of the form "setname/host1,host2".
func SplitHostArg(connString string) ([]string, string) {
	slashIndex := strings.Index(connString, "/")
	if slashIndex < 0 {
		return strings.Split(connString, ","), ""
	}
	return strings.Split(connString[slashIndex+1:], ","), connString[:slashIndex]
}

// BuildURI builds a connection string from the legacy --host and --port
// options.
func BuildURI(host, port string) string {
	hosts, setName := SplitHostArg(host)
	for i, h := range hosts {
		if h == "" {
			h = DefaultHost
		}
		if port != "" && !strings.Contains(h, ":") {
			h = h + ":" + port
		}
		hosts[i] = h
	}

	uri := "mongodb://" + strings.Join(hosts, ",") + "/"
	if setName != "" {
		uri += "?replicaSet=" + setName
	}
	return uri
}

// ValidateDBName returns an error if the database name is empty or holds a
// character the server rejects.
func ValidateDBName(database string) error {
	if database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(database) > 63 {
		return fmt.Errorf("db name '%v' is longer than 63 characters", database)
	}
	if i := strings.IndexAny(database, InvalidDBChars); i >= 0 {
		return fmt.Errorf("db name '%v' contains invalid character %q", database, database[i])
	}
	return nil
}

// ValidateCollectionName returns an error if the collection name is empty,
// holds a character the server rejects, or names a system collection.
func ValidateCollectionName(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if i := strings.IndexAny(collection, InvalidCollectionChars); i >= 0 {
		return fmt.Errorf("collection name '%v' contains invalid character %q", collection, collection[i])
	}
	if strings.HasPrefix(collection, "system.") {
		return fmt.Errorf("collection name '%v' is reserved", collection)
	}
	return nil
}
