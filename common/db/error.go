// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

const maxIdStrLen = 200

// FlushError is returned when a bulk write fails. Lost holds the documents of
// the failed batch. The server may have inserted part of the batch before
// failing; no partial-success accounting is attempted.
type FlushError struct {
	Lost []bson.Raw
	Err  error
}

var _ error = &FlushError{}

func (fe *FlushError) Error() string {
	return fmt.Sprintf("bulk insert of %d document(s) failed: %v", len(fe.Lost), fe.Err)
}

func (fe *FlushError) Unwrap() error {
	return fe.Err
}

// DocSummary formats a document for a log line, truncating long documents.
func DocSummary(doc bson.Raw) string {
	s := doc.String()
	if len(s) > maxIdStrLen {
		s = s[:maxIdStrLen] + " (truncated)"
	}
	return s
}
