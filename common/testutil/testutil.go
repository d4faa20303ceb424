// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil implements functions for configuring integration tests.
package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/mongodb-labs/bulkmodify/common/db"
	"github.com/mongodb-labs/bulkmodify/common/options"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

const uriEnvVar = "TOOLS_TESTING_MONGOD"

// GetBareSession returns a client from the environment or from a default host
// and port.
func GetBareSession(t *testing.T) *mongo.Client {
	sessionProvider, _, err := GetBareSessionProvider()
	require.NoError(t, err)
	t.Cleanup(sessionProvider.Close)

	session, err := sessionProvider.GetSession()
	require.NoError(t, err)
	return session
}

// GetBareSessionProvider returns a session provider from the environment or
// from a default host and port.
func GetBareSessionProvider() (*db.SessionProvider, *options.ToolOptions, error) {
	toolOptions, err := GetToolOptions()
	if err != nil {
		return nil, nil, fmt.Errorf(
			"error getting tool options to create a bare session provider: %w",
			err,
		)
	}

	sessionProvider, err := db.NewSessionProvider(*toolOptions)
	if err != nil {
		return nil, nil, err
	}

	return sessionProvider, toolOptions, nil
}

// GetToolOptions parses GetBareArgs into a fresh ToolOptions.
func GetToolOptions() (*options.ToolOptions, error) {
	enabled := options.EnabledOptions{Auth: true, Connection: true, Namespace: true, URI: true}
	toolOptions := options.New("bulkmodify-test", "", "", "", false, enabled)

	_, err := toolOptions.ParseArgs(GetBareArgs())
	if err != nil {
		return nil, fmt.Errorf(
			"could not create toolOptions from the %#q env var: %w",
			uriEnvVar,
			err,
		)
	}
	return toolOptions, nil
}

// GetBareArgs returns the connection arguments for the test server.
func GetBareArgs() []string {
	if uri := os.Getenv(uriEnvVar); uri != "" {
		return []string{"--uri", uri}
	}
	return []string{"--host", "localhost", "--port", db.DefaultTestPort}
}
