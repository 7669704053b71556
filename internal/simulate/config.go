package simulate

import (
	"fmt"
	"net/url"
	"time"
)

// Runner defaults.
const (
	DefaultBaseURL      = "http://localhost:9080"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultPollTimeout  = 10 * time.Minute
)

// RunConfig holds configuration for a simulation run against a service.
type RunConfig struct {
	BaseURL         string        // base URL of the service
	Timeout         time.Duration // per-request HTTP timeout
	PollInterval    time.Duration // delay between job status checks
	PollTimeout     time.Duration // give up on the job after this long
	EnableShortTerm bool          // fit the same-day stability terms
	OutputFile      string        // where to write the corpus, skipped when empty
	Corpus          CorpusConfig
}

// DefaultRunConfig returns a RunConfig pointed at a local service.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
		Corpus:       DefaultCorpusConfig(),
	}
}

// Validate reports the first unusable setting.
func (c RunConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil || u.Scheme == "" || u.Host == "":
		return fmt.Errorf("%w: base url %q", ErrInvalidConfig, c.BaseURL)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	case c.PollTimeout <= 0:
		return fmt.Errorf("%w: poll timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
