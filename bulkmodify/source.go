// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bulkmodify

import (
	"context"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IdentifierSource lists the ids a migration runs for.
type IdentifierSource interface {
	Identifiers(ctx context.Context) ([]interface{}, error)
}

// Transformer produces the documents to insert for a single id.
type Transformer interface {
	Transform(ctx context.Context, id interface{}) (RecordCursor, error)
}

// RecordCursor iterates over transformed documents. Record returns a document
// that stays valid after the next call to Next.
type RecordCursor interface {
	Next(ctx context.Context) bool
	Record() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// Target is the collection documents are inserted into.
type Target interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	Drop(ctx context.Context) error
}

var _ Target = (*mongo.Collection)(nil)

// DistinctSource reads the distinct values of Field in a collection.
type DistinctSource struct {
	Collection *mongo.Collection
	Field      string
}

func (ds *DistinctSource) Identifiers(ctx context.Context) ([]interface{}, error) {
	return ds.Collection.Distinct(ctx, ds.Field, bson.D{})
}

// AggregateTransformer runs Pipeline against a source collection.
type AggregateTransformer struct {
	Collection *mongo.Collection
	Lookup     string
	IDField    string
}

func (at *AggregateTransformer) Transform(ctx context.Context, id interface{}) (RecordCursor, error) {
	cursor, err := at.Collection.Aggregate(
		ctx,
		Pipeline(at.Lookup, at.IDField, id),
		&options.AggregateOptions{AllowDiskUse: lo.ToPtr(true)},
	)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cursor}, nil
}

// mongoCursor copies each document out of the driver's batch buffer.
type mongoCursor struct {
	*mongo.Cursor
}

func (c *mongoCursor) Record() bson.Raw {
	return append(bson.Raw(nil), c.Current...)
}
