// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

// Package parlor implements the parlor chat wire protocol.
//
// Parlor is a small text chat protocol layered on a reliable byte stream such
// as a TCP connection. A logical message (a [Frame]) pairs a one-byte [Kind]
// with an arbitrary-length payload, and is carried as one or more packets of
// fixed capacity [PacketSize]:
//
//	[kind byte][0..1022 payload bytes][trailer byte]
//
// The trailer marks whether more packets of the same frame follow. Reserved
// byte values, the trailer markers and every defined kind, are stripped from
// payload bytes on both sides of the exchange; the protocol is deliberately
// not byte-transparent (see [CleanPayload]).
//
// # Channels
//
// The [Channel] interface defines the ability to send and receive whole
// frames. The channel package provides implementations over an io stream and
// directly in memory for testing.
//
// # Sessions
//
// Immediately after connecting, a client sends its display name as raw bytes
// (at most [MaxNameLen]) rather than a frame. The server either replies with
// a [KindRefuseConnection] frame and closes, or proceeds silently into framed
// exchange. The server package implements the serving side: a single
// dispatcher that owns the user directory and routes each inbound frame by
// kind. The client package implements the connecting side.
package parlor
