// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the bulkmodify tool.
package main

import (
	"context"
	"os"

	"github.com/mongodb-labs/bulkmodify/bulkmodify"
	"github.com/mongodb-labs/bulkmodify/common/log"
	"github.com/mongodb-labs/bulkmodify/common/util"
)

var (
	VersionStr = "built-without-version-string"
	GitCommit  = "build-without-git-commit"
)

func main() {
	// initialize command-line opts
	opts, err := bulkmodify.ParseOptions(os.Args[1:], VersionStr, GitCommit)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("bulkmodify"))
		os.Exit(util.ExitFailure)
	}

	// print help, if specified
	if opts.PrintHelp(false) {
		return
	}

	// print version, if specified
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)

	// verify uri options and log them
	opts.URI.LogUnsupportedOptions()

	bm, err := bulkmodify.New(opts)
	if err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		os.Exit(util.ExitFailure)
	}
	defer bm.Close()

	if _, err := bm.Run(context.Background()); err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		bm.Close()
		os.Exit(util.ExitFailure)
	}
}
