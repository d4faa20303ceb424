// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bulkmodify

import (
	"fmt"
	"strings"

	"github.com/mongodb-labs/bulkmodify/common/db"
	"github.com/mongodb-labs/bulkmodify/common/options"
	"github.com/mongodb-labs/bulkmodify/common/util"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// DefaultDB is used when neither --db nor the connection string names a database.
const DefaultDB = "demo"

var Usage = `<options> <connection-string>

Reshape the accounts of every distinct user in a source collection and insert
the results into a target collection.

For each distinct --idField value in --source, an aggregation joins the
matching documents with --lookup and the grouped results are bulk inserted
into --target, --batchSize documents at a time.

Connection strings must begin with mongodb:// or mongodb+srv://. If none is
given, $MONGODB_URI (which may be set in a .env file) is used.`

// CollectionOptions names the collections the migration reads and writes.
type CollectionOptions struct {
	Source  string `long:"source" value-name:"<collection-name>" default:"acct" description:"collection holding the documents to migrate"`
	Lookup  string `long:"lookup" value-name:"<collection-name>" default:"acctMaster" description:"collection joined on AccountNumber"`
	Target  string `long:"target" value-name:"<collection-name>" default:"acctTarget" description:"collection the reshaped documents are inserted into"`
	IDField string `long:"idField" value-name:"<field>" default:"UserID" description:"field whose distinct values drive the migration"`
}

// Name returns a human-readable group name for collection options.
func (*CollectionOptions) Name() string {
	return "collection"
}

// MigrationOptions control how documents are written.
type MigrationOptions struct {
	BatchSize                int    `long:"batchSize" value-name:"<size>" default:"1000" description:"number of documents to buffer before each bulk insert"`
	Unordered                bool   `long:"unordered" description:"issue unordered bulk inserts"`
	BypassDocumentValidation bool   `long:"bypassDocumentValidation" description:"bypass document validation on the target collection"`
	Drop                     bool   `long:"drop" description:"drop the target collection before inserting"`
	DryRun                   bool   `long:"dryRun" description:"run the aggregations and count the results without inserting anything"`
	WriteConcern             string `long:"writeConcern" value-name:"<write-concern>" description:"write concern options e.g. --writeConcern majority, --writeConcern '{w: 3, wtimeout: 500, j: true}' (defaults to 'majority')"`

	// ParsedWriteConcern is built from WriteConcern and the connection string.
	ParsedWriteConcern *writeconcern.WriteConcern `no-flag:"true"`
}

// Name returns a human-readable group name for migration options.
func (*MigrationOptions) Name() string {
	return "migration"
}

type Options struct {
	*options.ToolOptions
	*CollectionOptions
	*MigrationOptions
}

// ParseOptions reads the command line into a validated Options.
func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("bulkmodify", versionStr, gitCommit, Usage, true,
		options.EnabledOptions{Auth: true, Connection: true, Namespace: true, URI: true})

	collectionOpts := &CollectionOptions{}
	opts.AddOptions(collectionOpts)
	migrationOpts := &MigrationOptions{}
	opts.AddOptions(migrationOpts)

	extraArgs, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}

	if len(extraArgs) != 0 {
		return Options{}, fmt.Errorf("error parsing positional arguments: "+
			"provide only one MongoDB connection string (got unexpected %q). "+
			"Connection strings must begin with mongodb:// or mongodb+srv:// schemes",
			extraArgs,
		)
	}

	if opts.Namespace.DB == "" {
		opts.Namespace.DB = DefaultDB
	}

	result := Options{opts, collectionOpts, migrationOpts}
	if err := result.validate(); err != nil {
		return Options{}, err
	}

	migrationOpts.ParsedWriteConcern, err = db.NewMongoWriteConcern(migrationOpts.WriteConcern, &opts.URI.ConnString)
	if err != nil {
		return Options{}, fmt.Errorf("error parsing --writeConcern: %v", err)
	}
	return result, nil
}

func (opts Options) validate() error {
	if opts.BatchSize < 1 {
		return fmt.Errorf("invalid value for --batchSize: %v (must be at least 1)", opts.BatchSize)
	}
	if opts.IDField == "" {
		return fmt.Errorf("--idField must not be empty")
	}

	if err := util.ValidateDBName(opts.Namespace.DB); err != nil {
		return fmt.Errorf("invalid database name: %v", err)
	}
	for _, c := range []struct{ flag, name string }{
		{"--source", opts.Source},
		{"--lookup", opts.Lookup},
		{"--target", opts.Target},
	} {
		if err := util.ValidateCollectionName(c.name); err != nil {
			return fmt.Errorf("invalid collection name for %v: %v", c.flag, err)
		}
	}
	// the lookup name doubles as the $lookup alias and a $group field name
	if strings.Contains(opts.Lookup, ".") {
		return fmt.Errorf("invalid collection name for --lookup: '%v' contains '.'", opts.Lookup)
	}
	if opts.Target == opts.Source || opts.Target == opts.Lookup {
		return fmt.Errorf("--target (%v) must differ from --source and --lookup", opts.Target)
	}
	return nil
}
