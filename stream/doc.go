// Package stream defines the wire event taxonomy for run push-streams and the
// classification of content payloads into displayable output versus diagnostic
// log records.
//
// Events arrive as (name, JSON payload) pairs from a transport. Decode turns
// them into typed Events; the Coordinator routes them per agent. Agent ids may
// arrive as numbers or numeric strings and are normalized to int here.
package stream
