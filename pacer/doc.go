// Package pacer converts bursty, variable-sized text arrivals into an evenly
// paced sequence of small emissions so a UI can render a live typing effect
// regardless of how the text actually arrived over the network.
//
// One Buffer serves one agent's text stream. It has no network knowledge: text
// goes in through Add, paced chunks come out through the emission callback.
// Emission is governed by a target token rate and a minimum chunk size, with a
// maximum buffer size acting as a backpressure release valve: when input
// outruns the target rate, bounded latency wins over perfectly even pacing.
package pacer
