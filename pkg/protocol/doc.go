// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the control channel vocabulary and its JSON
// encoding.
//
// Every record is one JSON document terminated by a newline. Clients send
// a Message and the daemon answers with a Reply whose Regarding field
// echoes the message ID:
//
//	{"id":1,"request":{"CreateApplication":{"name":"blog","hostname":"blog.example"}}}
//	{"regarding":1,"response":{"Ok":"CreatedApplication"}}
//
// Enumerations are externally tagged. Variants without fields are encoded
// as a bare string ("GetApplications"); variants with fields as an object
// with a single key naming the variant. Responses wrap either a Success
// under "Ok" or a Failure under "Err".
package protocol
