// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package server

import "expvar"

// metrics record server activity counters.
type metrics struct {
	connAccepted    expvar.Int // connections registered
	connRefused     expvar.Int // registrations refused
	connActive      expvar.Int // sessions currently registered
	framesIn        expvar.Int // frames received from sessions
	framesOut       expvar.Int // frames sent to sessions
	framesDropped   expvar.Int // frames with an unrecognized kind
	broadcasts      expvar.Int // fan-out operations performed
	sendErrors      expvar.Int // frame sends that failed
	transportErrors expvar.Int // sessions ended by a transport error

	emap *expvar.Map
}

func newMetrics() *metrics {
	m := &metrics{emap: new(expvar.Map)}
	m.emap.Set("connections_accepted", &m.connAccepted)
	m.emap.Set("connections_refused", &m.connRefused)
	m.emap.Set("connections_active", &m.connActive)
	m.emap.Set("frames_received", &m.framesIn)
	m.emap.Set("frames_sent", &m.framesOut)
	m.emap.Set("frames_dropped", &m.framesDropped)
	m.emap.Set("broadcasts", &m.broadcasts)
	m.emap.Set("send_errors", &m.sendErrors)
	m.emap.Set("transport_errors", &m.transportErrors)
	return m
}

// Metrics returns the server's activity counters. It is safe for the caller
// to add additional metrics to the map while the server is running.
func (s *Server) Metrics() *expvar.Map { return s.metrics.emap }
