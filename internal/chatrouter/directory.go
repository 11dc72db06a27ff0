// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package chatrouter implements the chat router's directory, dispatcher,
// and single-threaded readiness loop.
package chatrouter

import "sort"

// ConnID identifies a connection handle owned by the router loop.
type ConnID uint64

// Directory maps client names to connection handles and back. It is owned
// exclusively by the router's loop goroutine; nothing else touches it, so
// it carries no locking of its own.
type Directory struct {
	byName map[string]ConnID
	byConn map[ConnID]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]ConnID),
		byConn: make(map[ConnID]string),
	}
}

// Register records that name belongs to conn. It fails (returns false) if
// name is already registered to any connection, preserving the uniqueness
// invariant. A connection that already owns a different name is an error
// the caller (the dispatcher) never provokes, since HELLO is the only
// registration path and a connection only ever sends one HELLO.
func (d *Directory) Register(name string, conn ConnID) bool {
	if _, exists := d.byName[name]; exists {
		return false
	}
	d.byName[name] = conn
	d.byConn[conn] = name
	return true
}

// Unregister removes any record owned by conn. It is a no-op if conn has
// no record, so callers may invoke it unconditionally on disconnect.
func (d *Directory) Unregister(conn ConnID) {
	name, ok := d.byConn[conn]
	if !ok {
		return
	}
	delete(d.byConn, conn)
	delete(d.byName, name)
}

// Lookup returns the connection handle registered for name.
func (d *Directory) Lookup(name string) (ConnID, bool) {
	conn, ok := d.byName[name]
	return conn, ok
}

// NameOf returns the name registered to conn, if any.
func (d *Directory) NameOf(conn ConnID) (string, bool) {
	name, ok := d.byConn[conn]
	return name, ok
}

// Names returns all registered names in sorted order. Sorting gives the
// CLIENT_LIST body a deterministic layout; the wire format does not
// require any particular order.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.byName))
	for n := range d.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered clients.
func (d *Directory) Len() int {
	return len(d.byName)
}
