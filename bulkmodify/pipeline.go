// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bulkmodify

import (
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// joinField is the field shared by the source and lookup collections.
const joinField = "AccountNumber"

// phoneNumberLen is the number of bytes of PhoneNumber kept in the output.
const phoneNumberLen = 10

// lookupFields are copied from the joined lookup document as-is.
var lookupFields = []string{"DateOpen", "DateClosed", "TitleAddress1"}

// Pipeline returns the aggregation run against the source collection for a
// single id. Source documents matching id are joined with lookup on
// AccountNumber and grouped per (UserID, AccountNumber), collecting every
// RegRepNumber and OIP. The first joined lookup document of each group
// supplies the account's dates, address and phone number.
func Pipeline(lookup, idField string, id interface{}) mongo.Pipeline {
	alias := "$" + lookup

	project := bson.D{
		{"_id", 0},
		{"UserID", "$_id.UserID"},
		{joinField, "$_id." + joinField},
		{"RegRepNumbers", 1},
		{"OIPs", 1},
	}
	project = append(project, lo.Map(lookupFields, func(field string, _ int) bson.E {
		return bson.E{Key: field, Value: alias + "." + field}
	})...)
	project = append(project, bson.E{Key: "PhoneNumber", Value: bson.D{
		{"$substrBytes", bson.A{alias + ".PhoneNumber", 0, phoneNumberLen}},
	}})

	return mongo.Pipeline{
		{{"$match", bson.D{{idField, id}}}},
		{{"$lookup", bson.D{
			{"from", lookup},
			{"as", lookup},
			{"localField", joinField},
			{"foreignField", joinField},
		}}},
		{{"$unwind", alias}},
		{{"$group", bson.D{
			{"_id", bson.D{
				{"UserID", "$" + idField},
				{joinField, "$" + joinField},
			}},
			{"RegRepNumbers", bson.D{{"$push", "$RegRepNumber"}}},
			{"OIPs", bson.D{{"$push", "$OIP"}}},
			{lookup, bson.D{{"$first", alias}}},
		}}},
		{{"$project", project}},
	}
}
