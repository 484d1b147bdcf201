package agentstream

import (
	"context"

	"go.uber.org/zap"

	"github.com/aideator/agentstream/api"
	"github.com/aideator/agentstream/config"
	"github.com/aideator/agentstream/transport"
)

// Version is the current agentstream version
const Version = "1.0.0"

// Client ties the pieces together for the common case: it reads user
// preferences, talks to the run control plane, and runs a Coordinator wired
// with the preferred transport and pacing settings. Applications that need
// finer control can assemble api.Client, transport.Transport, and
// Coordinator themselves.
type Client struct {
	prefs  config.Preferences
	api    *api.Client
	coord  *Coordinator
	logger *zap.Logger
}

// ClientConfig holds configuration for the Client.
type ClientConfig struct {
	// Preferences override the persisted user preferences. Zero value
	// means load from the default path.
	Preferences *config.Preferences

	// Logger is used for all components. Defaults to a no-op logger.
	Logger *zap.Logger
}

// NewClient builds a Client from preferences. Extra options are passed to
// the underlying Coordinator and take precedence over preference values.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prefs := config.Default()
	if cfg.Preferences != nil {
		prefs = *cfg.Preferences
	} else {
		path, err := config.DefaultPath()
		if err == nil {
			prefs, err = config.Load(path)
			if err != nil {
				return nil, NewStreamError("NewClient", "", err)
			}
		}
	}

	apiClient := api.NewClient(prefs.BaseURL, api.WithLogger(logger))

	// Transport variant is a stream-start concern; the coordinator dials
	// lazily, so building it here still honors the preference at start.
	tr, err := transport.New(transport.Variant(prefs.Transport), prefs.BaseURL,
		transport.WithLogger(logger))
	if err != nil {
		return nil, NewStreamError("NewClient", "", err)
	}

	coordOpts := []Option{
		WithSelector(apiClient),
		WithLogger(logger),
	}
	if prefs.TokensPerSecond > 0 {
		coordOpts = append(coordOpts, WithTokensPerSecond(prefs.TokensPerSecond))
	}
	if prefs.MinChunkSize > 0 {
		coordOpts = append(coordOpts, WithMinChunkSize(prefs.MinChunkSize))
	}
	if prefs.MaxBufferSize > 0 {
		coordOpts = append(coordOpts, WithMaxBufferSize(prefs.MaxBufferSize))
	}
	coordOpts = append(coordOpts, opts...)

	coord, err := New(tr, coordOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		prefs:  prefs,
		api:    apiClient,
		coord:  coord,
		logger: logger,
	}, nil
}

// Coordinator exposes the underlying stream coordinator.
func (c *Client) Coordinator() *Coordinator {
	return c.coord
}

// Preferences returns the preferences the client was built with.
func (c *Client) Preferences() config.Preferences {
	return c.prefs
}

// StartRun creates a run for the prompt and starts streaming it.
func (c *Client) StartRun(ctx context.Context, params api.CreateRunParams) (string, error) {
	runID, err := c.api.CreateRun(ctx, params)
	if err != nil {
		return "", err
	}
	c.logger.Info("run created",
		zap.String("run_id", runID),
		zap.Int("agent_count", params.AgentCount))

	if err := c.coord.StartStream(ctx, runID); err != nil {
		return "", err
	}
	return runID, nil
}

// Stop closes the stream.
func (c *Client) Stop() {
	c.coord.StopStream()
}
