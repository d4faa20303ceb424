// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// The default value of maxMessageSizeBytes
// See: https://docs.mongodb.com/manual/reference/command/hello/#mongodb-data-hello.maxMessageSizeBytes
const MAX_MESSAGE_SIZE_BYTES = 48000000

// DefaultDocLimit is the number of documents buffered before a bulk write.
const DefaultDocLimit = 1000

// BulkWriter is the write side of a collection. *mongo.Collection satisfies it.
type BulkWriter interface {
	BulkWrite(
		ctx context.Context,
		models []mongo.WriteModel,
		opts ...*options.BulkWriteOptions,
	) (*mongo.BulkWriteResult, error)
}

// BufferedBulkInserter implements a bufio.Writer-like design for queuing up
// documents and inserting them in bulk when the given doc limit (or max
// message size) is reached. Must be flushed at the end to ensure that all
// documents are written.
//
// It is not safe for concurrent use.
type BufferedBulkInserter struct {
	writer        BulkWriter
	docs          []bson.Raw
	docLimit      int
	byteCount     int
	byteLimit     int
	bulkWriteOpts *options.BulkWriteOptions

	flushCount    int
	insertedCount int64
}

func newBufferedBulkInserter(writer BulkWriter, docLimit int, ordered bool) *BufferedBulkInserter {
	if docLimit < 1 {
		docLimit = DefaultDocLimit
	}
	return &BufferedBulkInserter{
		writer:        writer,
		bulkWriteOpts: options.BulkWrite().SetOrdered(ordered),
		docLimit:      docLimit,
		// We set the byte limit to be slightly lower than maxMessageSizeBytes so it can fit in one OP_MSG.
		byteLimit: MAX_MESSAGE_SIZE_BYTES - 100,
		docs:      make([]bson.Raw, 0, docLimit),
	}
}

// NewBufferedBulkInserter returns an initialized BufferedBulkInserter for performing ordered bulk writes.
func NewBufferedBulkInserter(writer BulkWriter, docLimit int) *BufferedBulkInserter {
	return newBufferedBulkInserter(writer, docLimit, true)
}

// NewUnorderedBufferedBulkInserter returns an initialized BufferedBulkInserter for performing unordered bulk writes.
func NewUnorderedBufferedBulkInserter(writer BulkWriter, docLimit int) *BufferedBulkInserter {
	return newBufferedBulkInserter(writer, docLimit, false)
}

func (bb *BufferedBulkInserter) SetBypassDocumentValidation(bypass bool) *BufferedBulkInserter {
	bb.bulkWriteOpts.SetBypassDocumentValidation(bypass)
	return bb
}

// DocLimit is the number of buffered documents that triggers a flush.
func (bb *BufferedBulkInserter) DocLimit() int {
	return bb.docLimit
}

// Len returns the number of documents currently buffered.
func (bb *BufferedBulkInserter) Len() int {
	return len(bb.docs)
}

// FlushCount returns the number of bulk writes issued so far.
func (bb *BufferedBulkInserter) FlushCount() int {
	return bb.flushCount
}

// InsertedCount returns the number of documents the server reported as
// inserted across all bulk writes.
func (bb *BufferedBulkInserter) InsertedCount() int64 {
	return bb.insertedCount
}

// throw away the old bulk and init a new one.
func (bb *BufferedBulkInserter) ResetBulk() {
	bb.docs = bb.docs[:0]
	bb.byteCount = 0
}

// InsertRaw adds a document, represented as raw bson bytes, to the buffer for bulk insertion. If the buffer becomes full,
// the bulk write is performed, returning any error that occurs.
func (bb *BufferedBulkInserter) InsertRaw(rawBytes []byte) (*mongo.BulkWriteResult, error) {
	bb.Append(rawBytes)
	return bb.MaybeFlush()
}

// Append adds a document to the buffer without checking whether it is full.
// The inserter keeps the slice, so callers must not reuse its backing array.
func (bb *BufferedBulkInserter) Append(doc bson.Raw) {
	bb.docs = append(bb.docs, doc)
	bb.byteCount += len(doc)
}

// MaybeFlush performs the bulk write if the buffer has reached the doc limit
// or the byte limit. It returns nil, nil when no write was needed.
func (bb *BufferedBulkInserter) MaybeFlush() (*mongo.BulkWriteResult, error) {
	if len(bb.docs) >= bb.docLimit || bb.byteCount >= bb.byteLimit {
		return bb.Flush()
	}
	return nil, nil
}

// Flush writes all buffered documents in one bulk write and then resets the
// buffer. An empty buffer is not written. The buffer is reset even when the
// write fails; the failed batch is returned in the *FlushError.
func (bb *BufferedBulkInserter) Flush() (*mongo.BulkWriteResult, error) {
	defer bb.ResetBulk()
	return bb.flush()
}

func (bb *BufferedBulkInserter) flush() (*mongo.BulkWriteResult, error) {
	if len(bb.docs) == 0 {
		return nil, nil
	}

	models := lo.Map(bb.docs, func(doc bson.Raw, _ int) mongo.WriteModel {
		return mongo.NewInsertOneModel().SetDocument(doc)
	})

	bb.flushCount++
	result, err := bb.writer.BulkWrite(context.Background(), models, bb.bulkWriteOpts)
	if result != nil {
		bb.insertedCount += result.InsertedCount
	}
	if err != nil {
		return result, &FlushError{
			Lost: append([]bson.Raw(nil), bb.docs...),
			Err:  err,
		}
	}
	return result, nil
}
