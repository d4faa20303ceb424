// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bulkmodify migrates reshaped account documents from one collection
// to another.
package bulkmodify

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/mongodb-labs/bulkmodify/common/db"
	"github.com/mongodb-labs/bulkmodify/common/log"
	"github.com/mongodb-labs/bulkmodify/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BulkModify runs a single migration.
type BulkModify struct {
	Options Options

	// SessionProvider is nil when the collaborators below were supplied directly.
	SessionProvider *db.SessionProvider

	Source      IdentifierSource
	Transformer Transformer
	Target      Target
}

// Result summarizes a run. On failure it holds the counts up to the error.
type Result struct {
	Identifiers    int64
	RecordsRead    int64
	RecordsWritten int64
	Flushes        int
}

func (result Result) log(ns string, dryRun bool) {
	if dryRun {
		log.Logvf(log.Always, "dry run: %v %v from %v %v would have been inserted into %v",
			humanize.Comma(result.RecordsRead), util.Pluralize(result.RecordsRead, "document", "documents"),
			humanize.Comma(result.Identifiers), util.Pluralize(result.Identifiers, "id", "ids"), ns)
		return
	}
	log.Logvf(log.Always, "finished inserting into %v (%v %v from %v %v in %v %v)",
		ns,
		humanize.Comma(result.RecordsWritten), util.Pluralize(result.RecordsWritten, "document", "documents"),
		humanize.Comma(result.Identifiers), util.Pluralize(result.Identifiers, "id", "ids"),
		result.Flushes, util.Pluralize(int64(result.Flushes), "batch", "batches"))
}

// New connects to the server described by opts and returns a BulkModify
// reading from and writing to the collections it names.
func New(opts Options) (*BulkModify, error) {
	provider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to host")
	}

	database := provider.DB(opts.Namespace.DB)
	source := database.Collection(opts.Source)
	return &BulkModify{
		Options:         opts,
		SessionProvider: provider,
		Source:          &DistinctSource{Collection: source, Field: opts.IDField},
		Transformer: &AggregateTransformer{
			Collection: source,
			Lookup:     opts.Lookup,
			IDField:    opts.IDField,
		},
		Target: database.Collection(
			opts.Target,
			options.Collection().SetWriteConcern(opts.ParsedWriteConcern),
		),
	}, nil
}

// Close disconnects from the server.
func (bm *BulkModify) Close() {
	if bm.SessionProvider != nil {
		bm.SessionProvider.Close()
	}
}

func (bm *BulkModify) targetNS() string {
	return bm.Options.Namespace.DB + "." + bm.Options.Target
}

// Run inserts the transformed documents of every id into the target,
// Options.BatchSize documents per bulk write, and flushes the remainder at the
// end. The first error of any kind stops the run.
func (bm *BulkModify) Run(ctx context.Context) (Result, error) {
	var result Result
	migration := bm.Options.MigrationOptions

	if migration.Drop && !migration.DryRun {
		log.Logvf(log.Always, "dropping collection %v", bm.targetNS())
		if err := bm.Target.Drop(ctx); err != nil {
			return result, errors.Wrapf(err, "error dropping collection %v", bm.targetNS())
		}
	}

	ids, err := bm.Source.Identifiers(ctx)
	if err != nil {
		return result, errors.Wrapf(err, "error reading distinct values of %v", bm.Options.IDField)
	}
	log.Logvf(log.Info, "found %v distinct %v %v",
		humanize.Comma(int64(len(ids))), bm.Options.IDField, util.Pluralize(int64(len(ids)), "value", "values"))

	var writer db.BulkWriter = bm.Target
	if migration.DryRun {
		writer = discardWriter{}
	}
	newInserter := db.NewBufferedBulkInserter
	if migration.Unordered {
		newInserter = db.NewUnorderedBufferedBulkInserter
	}
	inserter := newInserter(writer, migration.BatchSize)
	if migration.BypassDocumentValidation {
		inserter.SetBypassDocumentValidation(true)
	}

	for _, id := range ids {
		read, err := bm.transform(ctx, inserter, id)
		result.RecordsRead += read
		if err != nil {
			return bm.finish(result, inserter), err
		}
		result.Identifiers++
	}

	if _, err := inserter.Flush(); err != nil {
		return bm.finish(result, inserter), bm.flushFailed(err)
	}

	result = bm.finish(result, inserter)
	result.log(bm.targetNS(), migration.DryRun)
	return result, nil
}

// transform inserts the documents produced for id, returning how many were read.
func (bm *BulkModify) transform(ctx context.Context, inserter *db.BufferedBulkInserter, id interface{}) (int64, error) {
	log.Logvf(log.DebugLow, "transforming %v %v", bm.Options.IDField, id)

	cursor, err := bm.Transformer.Transform(ctx, id)
	if err != nil {
		return 0, errors.Wrapf(err, "error running aggregation for %v %v", bm.Options.IDField, id)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Logvf(log.DebugLow, "error closing cursor for %v %v: %v", bm.Options.IDField, id, err)
		}
	}()

	var read int64
	for cursor.Next(ctx) {
		read++
		bulkResult, err := inserter.InsertRaw(cursor.Record())
		if err != nil {
			return read, bm.flushFailed(err)
		}
		if bulkResult != nil && !bm.Options.DryRun {
			log.Logvf(log.Info, "inserted %v %v into %v",
				humanize.Comma(inserter.InsertedCount()),
				util.Pluralize(inserter.InsertedCount(), "document", "documents"),
				bm.targetNS())
		}
	}
	if err := cursor.Err(); err != nil {
		return read, errors.Wrapf(err, "error reading aggregation results for %v %v", bm.Options.IDField, id)
	}
	return read, nil
}

// flushFailed reports the documents lost to a failed bulk write.
func (bm *BulkModify) flushFailed(err error) error {
	var flushErr *db.FlushError
	if errors.As(err, &flushErr) {
		log.Logvf(log.Always, "%v %v could not be inserted into %v",
			humanize.Comma(int64(len(flushErr.Lost))),
			util.Pluralize(int64(len(flushErr.Lost)), "document", "documents"),
			bm.targetNS())
		for _, doc := range flushErr.Lost {
			log.Logvf(log.DebugLow, "not inserted: %v", db.DocSummary(doc))
		}
	}
	return errors.Wrapf(err, "error inserting into %v", bm.targetNS())
}

func (bm *BulkModify) finish(result Result, inserter *db.BufferedBulkInserter) Result {
	result.Flushes = inserter.FlushCount()
	if !bm.Options.DryRun {
		result.RecordsWritten = inserter.InsertedCount()
	}
	return result
}

// discardWriter accepts every batch without writing it.
type discardWriter struct{}

func (discardWriter) BulkWrite(
	_ context.Context,
	models []mongo.WriteModel,
	_ ...*options.BulkWriteOptions,
) (*mongo.BulkWriteResult, error) {
	return &mongo.BulkWriteResult{InsertedCount: int64(len(models))}, nil
}
