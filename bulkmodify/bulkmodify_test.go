// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bulkmodify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mongodb-labs/bulkmodify/common/db"
	"github.com/mongodb-labs/bulkmodify/common/options"
	"github.com/mongodb-labs/bulkmodify/common/testtype"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

var (
	errDistinct  = errors.New("distinct failed")
	errAggregate = errors.New("aggregate failed")
	errCursor    = errors.New("cursor failed")
	errWrite     = errors.New("write failed")
	errDrop      = errors.New("drop failed")
)

type fakeSource struct {
	ids   []interface{}
	err   error
	calls int
}

func (fs *fakeSource) Identifiers(context.Context) ([]interface{}, error) {
	fs.calls++
	return fs.ids, fs.err
}

type fakeCursor struct {
	docs   []bson.Raw
	pos    int
	err    error
	closed bool
}

func (fc *fakeCursor) Next(context.Context) bool {
	if fc.pos >= len(fc.docs) {
		return false
	}
	fc.pos++
	return true
}

func (fc *fakeCursor) Record() bson.Raw {
	return fc.docs[fc.pos-1]
}

func (fc *fakeCursor) Err() error {
	if fc.pos < len(fc.docs) {
		return nil
	}
	return fc.err
}

func (fc *fakeCursor) Close(context.Context) error {
	fc.closed = true
	return nil
}

// fakeTransformer returns the records registered for each id. Ids present in
// failOn fail the Transform call, ids in cursorErr fail after their records.
type fakeTransformer struct {
	records     map[interface{}][]bson.Raw
	failOn      map[interface{}]bool
	cursorErr   map[interface{}]bool
	transformed []interface{}
	cursors     []*fakeCursor
}

func (ft *fakeTransformer) Transform(_ context.Context, id interface{}) (RecordCursor, error) {
	ft.transformed = append(ft.transformed, id)
	if ft.failOn[id] {
		return nil, errAggregate
	}
	cursor := &fakeCursor{docs: ft.records[id]}
	if ft.cursorErr[id] {
		cursor.err = errCursor
	}
	ft.cursors = append(ft.cursors, cursor)
	return cursor, nil
}

// fakeTarget fails the bulk write whose 1-based number is failOn.
type fakeTarget struct {
	batches [][]bson.Raw
	opts    []*mopt.BulkWriteOptions
	failOn  int
	dropped bool
	dropErr error
}

func (ft *fakeTarget) BulkWrite(
	_ context.Context,
	models []mongo.WriteModel,
	opts ...*mopt.BulkWriteOptions,
) (*mongo.BulkWriteResult, error) {
	batch := make([]bson.Raw, len(models))
	for i, model := range models {
		batch[i] = model.(*mongo.InsertOneModel).Document.(bson.Raw)
	}
	ft.batches = append(ft.batches, batch)
	ft.opts = append(ft.opts, opts...)
	if ft.failOn == len(ft.batches) {
		return nil, errWrite
	}
	return &mongo.BulkWriteResult{InsertedCount: int64(len(models))}, nil
}

func (ft *fakeTarget) Drop(context.Context) error {
	if ft.dropErr != nil {
		return ft.dropErr
	}
	if len(ft.batches) > 0 {
		return errors.New("dropped after writing")
	}
	ft.dropped = true
	return nil
}

func testOptions(batchSize int) Options {
	return Options{
		ToolOptions: &options.ToolOptions{Namespace: &options.Namespace{DB: "demo"}},
		CollectionOptions: &CollectionOptions{
			Source:  "acct",
			Lookup:  "acctMaster",
			Target:  "acctTarget",
			IDField: "UserID",
		},
		MigrationOptions: &MigrationOptions{BatchSize: batchSize},
	}
}

func records(t *testing.T, id string, n int) []bson.Raw {
	docs := make([]bson.Raw, n)
	for i := range docs {
		raw, err := bson.Marshal(bson.D{{"UserID", id}, {"AccountNumber", fmt.Sprintf("%s-%d", id, i)}})
		require.NoError(t, err)
		docs[i] = raw
	}
	return docs
}

func accounts(batch []bson.Raw) []string {
	out := make([]string, len(batch))
	for i, doc := range batch {
		out[i] = doc.Lookup("AccountNumber").StringValue()
	}
	return out
}

func countUser(batch []bson.Raw, id string) int {
	n := 0
	for _, doc := range batch {
		if doc.Lookup("UserID").StringValue() == id {
			n++
		}
	}
	return n
}

type fixture struct {
	source      *fakeSource
	transformer *fakeTransformer
	target      *fakeTarget
	bm          *BulkModify
}

func newFixture(t *testing.T, batchSize int, counts ...interface{}) *fixture {
	f := &fixture{
		source:      &fakeSource{},
		transformer: &fakeTransformer{records: map[interface{}][]bson.Raw{}},
		target:      &fakeTarget{},
	}
	for i := 0; i < len(counts); i += 2 {
		id := counts[i].(string)
		f.source.ids = append(f.source.ids, id)
		f.transformer.records[id] = records(t, id, counts[i+1].(int))
	}
	f.bm = &BulkModify{
		Options:     testOptions(batchSize),
		Source:      f.source,
		Transformer: f.transformer,
		Target:      f.target,
	}
	return f
}

func TestRunBatching(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With two ids of 600 records each and a batch size of 1000", t, func() {
		f := newFixture(t, 1000, "A", 600, "B", 600)
		result, err := f.bm.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("the first batch mixes both ids and the final flush holds the rest", func() {
			So(f.target.batches, ShouldHaveLength, 2)
			So(f.target.batches[0], ShouldHaveLength, 1000)
			So(countUser(f.target.batches[0], "A"), ShouldEqual, 600)
			So(countUser(f.target.batches[0], "B"), ShouldEqual, 400)
			So(f.target.batches[1], ShouldHaveLength, 200)
			So(countUser(f.target.batches[1], "B"), ShouldEqual, 200)
		})

		Convey("the result counts everything", func() {
			So(result, ShouldResemble, Result{
				Identifiers:    2,
				RecordsRead:    1200,
				RecordsWritten: 1200,
				Flushes:        2,
			})
		})
	})

	Convey("With fewer records than the batch size", t, func() {
		f := newFixture(t, 1000, "u1", 3, "u2", 2)
		_, err := f.bm.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("one bulk write holds every record in transform order", func() {
			So(f.target.batches, ShouldHaveLength, 1)
			So(accounts(f.target.batches[0]), ShouldResemble,
				[]string{"u1-0", "u1-1", "u1-2", "u2-0", "u2-1"})
		})
	})

	Convey("With a batch size of 2 and an id with no records last", t, func() {
		f := newFixture(t, 2, "u1", 3, "u2", 0)
		result, err := f.bm.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("the threshold flush and the final flush split the records", func() {
			So(f.target.batches, ShouldHaveLength, 2)
			So(accounts(f.target.batches[0]), ShouldResemble, []string{"u1-0", "u1-1"})
			So(accounts(f.target.batches[1]), ShouldResemble, []string{"u1-2"})
			So(f.transformer.transformed, ShouldResemble, []interface{}{"u1", "u2"})
			So(result.Identifiers, ShouldEqual, 2)
		})
	})

	Convey("With no ids", t, func() {
		f := newFixture(t, 1000)
		result, err := f.bm.Run(context.Background())
		So(err, ShouldBeNil)
		So(f.target.batches, ShouldBeEmpty)
		So(result, ShouldResemble, Result{})
	})

	Convey("Every cursor is closed", t, func() {
		f := newFixture(t, 2, "u1", 3, "u2", 1, "u3", 0)
		_, err := f.bm.Run(context.Background())
		So(err, ShouldBeNil)
		So(f.transformer.cursors, ShouldHaveLength, 3)
		for _, cursor := range f.transformer.cursors {
			So(cursor.closed, ShouldBeTrue)
		}
	})
}

func TestRunFlushCount(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	for _, c := range []struct{ total, batchSize int }{
		{1, 1}, {10, 3}, {9, 3}, {999, 1000}, {2500, 1000},
	} {
		t.Run(fmt.Sprintf("L=%d T=%d", c.total, c.batchSize), func(t *testing.T) {
			f := newFixture(t, c.batchSize, "u1", c.total)
			result, err := f.bm.Run(context.Background())
			require.NoError(t, err)

			expected := c.total / c.batchSize
			if c.total%c.batchSize != 0 {
				expected++
			}
			assert.Len(t, f.target.batches, expected)
			assert.Equal(t, expected, result.Flushes)
			assert.EqualValues(t, c.total, result.RecordsWritten)
		})
	}
}

func TestRunAbortsOnWriteFailure(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	t.Run("threshold flush", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 3, "u2", 2, "u3", 1)
		f.target.failOn = 1

		result, err := f.bm.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errWrite)

		var flushErr *db.FlushError
		require.ErrorAs(t, err, &flushErr)
		assert.Equal(t, []string{"u1-0", "u1-1"}, accounts(flushErr.Lost))

		assert.Equal(t, []interface{}{"u1"}, f.transformer.transformed, "no later ids are transformed")
		assert.Len(t, f.target.batches, 1, "no further writes are issued")
		assert.EqualValues(t, 0, result.RecordsWritten)
		assert.EqualValues(t, 0, result.Identifiers)
		assert.True(t, f.transformer.cursors[0].closed)
	})

	t.Run("later threshold flush", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 3, "u2", 2, "u3", 1)
		f.target.failOn = 2

		result, err := f.bm.Run(context.Background())
		require.ErrorIs(t, err, errWrite)
		assert.Equal(t, []interface{}{"u1", "u2"}, f.transformer.transformed)
		assert.Len(t, f.target.batches, 2)
		assert.EqualValues(t, 2, result.RecordsWritten)
		assert.Equal(t, 2, result.Flushes)
	})

	t.Run("final flush", func(t *testing.T) {
		f := newFixture(t, 10, "u1", 3, "u2", 2)
		f.target.failOn = 1

		result, err := f.bm.Run(context.Background())
		require.ErrorIs(t, err, errWrite)
		assert.Contains(t, err.Error(), "error inserting into demo.acctTarget")

		var flushErr *db.FlushError
		require.ErrorAs(t, err, &flushErr)
		assert.Len(t, flushErr.Lost, 5)
		assert.EqualValues(t, 2, result.Identifiers)
		assert.EqualValues(t, 5, result.RecordsRead)
	})
}

func TestRunAbortsOnReadFailure(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With a batch size of 1000", t, func() {
		f := newFixture(t, 1000, "u1", 3, "u2", 2, "u3", 1)

		Convey("a failed distinct transforms and writes nothing", func() {
			f.source.err = errDistinct
			_, err := f.bm.Run(context.Background())
			So(errors.Is(err, errDistinct), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "error reading distinct values of UserID")
			So(f.transformer.transformed, ShouldBeEmpty)
			So(f.target.batches, ShouldBeEmpty)
		})

		Convey("a failed aggregation stops the run without a final flush", func() {
			f.transformer.failOn = map[interface{}]bool{"u2": true}
			result, err := f.bm.Run(context.Background())
			So(errors.Is(err, errAggregate), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "error running aggregation for UserID u2")
			So(f.transformer.transformed, ShouldResemble, []interface{}{"u1", "u2"})
			So(f.target.batches, ShouldBeEmpty)
			So(result.Identifiers, ShouldEqual, 1)
			So(result.RecordsRead, ShouldEqual, 3)
		})

		Convey("a cursor error stops the run", func() {
			f.transformer.cursorErr = map[interface{}]bool{"u1": true}
			_, err := f.bm.Run(context.Background())
			So(errors.Is(err, errCursor), ShouldBeTrue)
			So(f.transformer.transformed, ShouldResemble, []interface{}{"u1"})
			So(f.transformer.cursors[0].closed, ShouldBeTrue)
			So(f.target.batches, ShouldBeEmpty)
		})
	})
}

func TestRunMigrationOptions(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	t.Run("dry run writes nothing", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 3, "u2", 2)
		f.bm.Options.DryRun = true
		f.bm.Options.Drop = true

		result, err := f.bm.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, f.target.batches)
		assert.False(t, f.target.dropped)
		assert.EqualValues(t, 5, result.RecordsRead)
		assert.EqualValues(t, 0, result.RecordsWritten)
		assert.Equal(t, 3, result.Flushes)
	})

	t.Run("drop happens before any write", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 3)
		f.bm.Options.Drop = true

		_, err := f.bm.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, f.target.dropped)
		assert.Len(t, f.target.batches, 2)
	})

	t.Run("failed drop aborts", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 3)
		f.bm.Options.Drop = true
		f.target.dropErr = errDrop

		_, err := f.bm.Run(context.Background())
		require.ErrorIs(t, err, errDrop)
		assert.Equal(t, 0, f.source.calls)
		assert.Empty(t, f.target.batches)
	})

	t.Run("write options", func(t *testing.T) {
		f := newFixture(t, 2, "u1", 1)
		_, err := f.bm.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, f.target.opts, 1)
		assert.True(t, *f.target.opts[0].Ordered)
		assert.Nil(t, f.target.opts[0].BypassDocumentValidation)

		f = newFixture(t, 2, "u1", 1)
		f.bm.Options.Unordered = true
		f.bm.Options.BypassDocumentValidation = true
		_, err = f.bm.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, f.target.opts, 1)
		assert.False(t, *f.target.opts[0].Ordered)
		assert.True(t, *f.target.opts[0].BypassDocumentValidation)
	})
}
