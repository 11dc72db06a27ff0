// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package chatrouter

import "github.com/epark-labs/netlab/internal/chatframe"

// Directive tells the loop what to do with the sender's connection after a
// dispatch.
type Directive int

const (
	// Keep leaves the connection open.
	Keep Directive = iota
	// Disconnect closes the connection and drops its directory record.
	Disconnect
)

// Reply is one outbound frame the loop must write to a specific connection.
type Reply struct {
	To    ConnID
	Frame chatframe.Frame
}

const serverName = "Server"

// Dispatch interprets a decoded frame from sender and returns the frames
// the loop must send plus a directive for the sender's connection. It has
// no I/O of its own: directory mutation (on HELLO) is its only side
// effect, which keeps it trivial to test and lets the loop batch writes.
func Dispatch(f chatframe.Frame, sender ConnID, dir *Directory) ([]Reply, Directive) {
	switch f.Type {
	case chatframe.HELLO:
		return dispatchHello(f, sender, dir)
	case chatframe.ListRequest:
		return []Reply{clientListReply(sender, dir)}, Keep
	case chatframe.Chat:
		return dispatchChat(f, sender, dir)
	case chatframe.Exit:
		return nil, Disconnect
	default:
		return nil, Disconnect
	}
}

func dispatchHello(f chatframe.Frame, sender ConnID, dir *Directory) ([]Reply, Directive) {
	if _, exists := dir.Lookup(f.Source); exists {
		reply := chatframe.Frame{
			Type:        chatframe.ClientAlreadyPresentError,
			Source:      f.Destination,
			Destination: f.Source,
		}
		return []Reply{{To: sender, Frame: reply}}, Disconnect
	}

	dir.Register(f.Source, sender)

	ack := chatframe.Frame{
		Type:        chatframe.HELLOAck,
		Source:      serverName,
		Destination: f.Source,
	}
	return []Reply{
		{To: sender, Frame: ack},
		clientListReply(sender, dir),
	}, Keep
}

func clientListReply(to ConnID, dir *Directory) Reply {
	name, _ := dir.NameOf(to)
	data := chatframe.NulTerminatedNames(dir.Names())
	return Reply{
		To: to,
		Frame: chatframe.Frame{
			Type:        chatframe.ClientList,
			Source:      serverName,
			Destination: name,
			Data:        data,
		},
	}
}

func dispatchChat(f chatframe.Frame, sender ConnID, dir *Directory) ([]Reply, Directive) {
	dest, ok := dir.Lookup(f.Destination)
	if !ok {
		errFrame := chatframe.Frame{
			Type:        chatframe.CannotDeliverError,
			Source:      serverName,
			Destination: f.Source,
			MsgID:       f.MsgID,
		}
		return []Reply{{To: sender, Frame: errFrame}}, Keep
	}
	return []Reply{{To: dest, Frame: f}}, Keep
}
