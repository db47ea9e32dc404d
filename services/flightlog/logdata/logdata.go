// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logdata models the Parsed Log input: a nested mapping from
// message type to one of two shapes, discriminated by the presence of
// time_boot_ms, plus the sibling collections the data model carries
// alongside per-message-type telemetry.
package logdata

import "encoding/json"

// timeBootMsField is the field name that discriminates a message type's
// shape: present means time-series, absent means static.
const timeBootMsField = "time_boot_ms"

// Shape discriminates a message type's materialized form.
type Shape int

const (
	// ShapeTimeSeries means the message type carries a time_boot_ms field;
	// every other field is a mapping from ordinal key to scalar.
	ShapeTimeSeries Shape = iota
	// ShapeStatic means the message type has no time_boot_ms field; every
	// field holds a single scalar.
	ShapeStatic
)

// MessageType is one message type's raw, not-yet-ingested payload: a
// mapping from field name to either a time-indexed map of scalars
// (time-series) or a bare scalar (static).
type MessageType map[string]json.RawMessage

// Shape inspects mt for the time_boot_ms field and reports the message
// type's discriminated shape.
func (mt MessageType) Shape() Shape {
	if _, ok := mt[timeBootMsField]; ok {
		return ShapeTimeSeries
	}
	return ShapeStatic
}

// ParsedLog is the full input to the Log Ingester: a mapping from message
// type (e.g. ATT, GPS[0]) to its raw payload, plus the sibling collections
// the data model names. The sibling collections are carried through
// unmodified; none are ingested into tables by this system (Non-goal:
// editing or writing back log data; the sibling collections are metadata
// about the log, not analytical telemetry).
type ParsedLog struct {
	MessageTypes map[string]MessageType `json:"-"`

	Trajectories      json.RawMessage `json:"trajectories,omitempty"`
	Params            json.RawMessage `json:"params,omitempty"`
	Events            json.RawMessage `json:"events,omitempty"`
	FlightModeChanges json.RawMessage `json:"flightModeChanges,omitempty"`
	Mission           json.RawMessage `json:"mission,omitempty"`
	Fences            json.RawMessage `json:"fences,omitempty"`
	File              json.RawMessage `json:"file,omitempty"`
	LogType           json.RawMessage `json:"logType,omitempty"`
}

// UnmarshalJSON splits the top-level object into message types and the
// named sibling collections, since the wire format mixes both at the same
// nesting level.
func (p *ParsedLog) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.MessageTypes = make(map[string]MessageType)
	for key, value := range raw {
		switch key {
		case "trajectories":
			p.Trajectories = value
		case "params":
			p.Params = value
		case "events":
			p.Events = value
		case "flightModeChanges":
			p.FlightModeChanges = value
		case "mission":
			p.Mission = value
		case "fences":
			p.Fences = value
		case "file":
			p.File = value
		case "logType":
			p.LogType = value
		default:
			var mt MessageType
			if err := json.Unmarshal(value, &mt); err != nil {
				// Not an object; treat as its own message type with a raw
				// payload the ingester will report an IngestError for.
				p.MessageTypes[key] = MessageType{"_raw": value}
				continue
			}
			p.MessageTypes[key] = mt
		}
	}
	return nil
}

// MarshalJSON reassembles the split representation back into a single
// top-level object, mirroring the wire format the system accepts.
func (p ParsedLog) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(p.MessageTypes)+8)
	for k, v := range p.MessageTypes {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw[k] = b
	}
	assign := func(key string, value json.RawMessage) {
		if len(value) > 0 {
			raw[key] = value
		}
	}
	assign("trajectories", p.Trajectories)
	assign("params", p.Params)
	assign("events", p.Events)
	assign("flightModeChanges", p.FlightModeChanges)
	assign("mission", p.Mission)
	assign("fences", p.Fences)
	assign("file", p.File)
	assign("logType", p.LogType)
	return json.Marshal(raw)
}
