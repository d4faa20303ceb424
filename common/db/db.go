// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package db implements the connection to MongoDB and buffered bulk
// insertion into a collection.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mongodb-labs/bulkmodify/common/log"
	"github.com/mongodb-labs/bulkmodify/common/options"
	"github.com/mongodb-labs/bulkmodify/common/util"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Default port for integration tests
const (
	DefaultTestPort = "33333"
)

// Used to manage database sessions
type SessionProvider struct {
	sync.Mutex

	// the master client used for operations
	client *mongo.Client
}

// Returns a mongo.Client connected to the database server for which the
// session provider is configured.
func (sp *SessionProvider) GetSession() (*mongo.Client, error) {
	sp.Lock()
	defer sp.Unlock()

	if sp.client == nil {
		return nil, errors.New("SessionProvider already closed")
	}

	return sp.client, nil
}

// Close closes the master session in the connection pool
func (sp *SessionProvider) Close() {
	sp.Lock()
	defer sp.Unlock()
	if sp.client != nil {
		_ = sp.client.Disconnect(context.Background())
		sp.client = nil
	}
}

// DB provides a database with the default read preference
func (sp *SessionProvider) DB(name string) *mongo.Database {
	return sp.client.Database(name)
}

// DropDatabase drops a database. Used by the integration tests.
func (sp *SessionProvider) DropDatabase(dbName string) error {
	return sp.DB(dbName).Drop(context.Background())
}

// NewSessionProvider constructs a session provider, including a connected client.
func NewSessionProvider(opts options.ToolOptions) (*SessionProvider, error) {
	clientopt, err := configureClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error configuring the connector: %v", err)
	}

	log.Logvf(log.DebugLow, "connecting to %v", util.SanitizeURI(opts.URI.ConnectionString))
	client, err := mongo.Connect(context.Background(), clientopt)
	if err != nil {
		return nil, err
	}
	err = client.Ping(context.Background(), nil)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not connect to server: %v", err)
	}

	return &SessionProvider{client: client}, nil
}

// configure the client according to the options set in the uri and in the
// provided ToolOptions, with ToolOptions having precedence.
func configureClient(opts options.ToolOptions) (*mopt.ClientOptions, error) {
	if opts.URI == nil || opts.URI.ConnectionString == "" {
		return nil, errors.New("no connection string; options must be parsed before connecting")
	}

	cs := opts.URI.ConnString
	clientopt := mopt.Client().ApplyURI(opts.URI.ConnectionString)
	if err := clientopt.Validate(); err != nil {
		return nil, err
	}

	clientopt.SetAppName(opts.AppName)
	if opts.Connection != nil && opts.Timeout > 0 {
		clientopt.SetConnectTimeout(time.Duration(opts.Timeout) * time.Second)
	}
	if opts.Direct {
		clientopt.SetDirect(true)
	}

	// If no write concern was specified, default to majority
	if cs.WString == "" && !cs.WNumberSet && !cs.JSet {
		clientopt.SetWriteConcern(writeconcern.New(writeconcern.WMajority()))
	}

	if opts.Auth != nil && (opts.Auth.Username != "" || opts.Auth.Mechanism != "") {
		cred := mopt.Credential{
			Username:      opts.Auth.Username,
			Password:      opts.Auth.Password,
			AuthSource:    opts.GetAuthenticationDatabase(),
			AuthMechanism: opts.Auth.Mechanism,
		}
		// Technically, an empty password is possible, but the tools don't have the
		// means to easily distinguish and so require a non-empty password.
		if cred.Password != "" {
			cred.PasswordSet = true
		}
		if cs.AuthMechanismProperties != nil {
			cred.AuthMechanismProperties = cs.AuthMechanismProperties
		}
		clientopt.SetAuth(cred)
	}

	return clientopt, nil
}
