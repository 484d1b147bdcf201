// Package agentstream is the client core for watching multi-agent comparison
// runs in real time. A run fans one prompt out to several competing model
// agents; the server pushes their interleaved output back over a single
// stream. This package turns that stream into smooth, per-agent typing-effect
// transcripts.
//
// Two pieces do the work:
//
//   - The pacer package smooths bursty network text into evenly paced
//     emissions at a configurable tokens-per-second rate, cutting on word
//     and fenced-block boundaries.
//   - The Coordinator owns the stream connection for one run, demultiplexes
//     events by agent id, filters structured log payloads out of the visible
//     transcripts, and reconnects with exponential backoff when the
//     connection drops.
//
// # Quick Start
//
//	tr, _ := transport.New(transport.VariantSSE, "http://localhost:8080")
//	coord, err := agentstream.New(tr,
//	    agentstream.WithTokensPerSecond(40),
//	    agentstream.WithOnToken(func(agentID int, chunk string) {
//	        render(agentID, chunk)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := coord.StartStream(ctx, runID); err != nil {
//	    log.Fatal(err)
//	}
//	defer coord.StopStream()
//
// The Coordinator is safe for concurrent use: event handling runs on its own
// goroutine, pacing timers fire independently per agent, and all accessors
// may be called from the UI side at any time.
package agentstream
