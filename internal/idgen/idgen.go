// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package idgen mints globally-unique, sortable identifiers used purely
// for internal tracing: correlating log lines and trace-file entries
// across an RUDP session or a chat connection. Neither wire protocol
// carries these IDs.
package idgen

import "github.com/rs/xid"

// New returns a new identifier string.
func New() string {
	return xid.New().String()
}
