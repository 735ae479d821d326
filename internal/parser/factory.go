package parser

import (
	"fmt"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/retry"
)

// New constructs the ParseService selected by s.Provider.
func New(s config.ParseSettings, policy retry.Policy) (ParseService, error) {
	switch s.Provider {
	case "hosted", "":
		c, err := NewHostedClient(HostedConfig{
			BaseURL:      s.BaseURL,
			APIKey:       s.APIKey,
			ResultType:   s.ResultType,
			Language:     s.Language,
			PollInterval: s.PollInterval,
			Timeout:      s.Timeout,
			RateLimit:    s.RateLimit,
			Retry:        policy,
			Verbose:      s.Verbose,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "local":
		return NewLocalParser(""), nil
	default:
		return nil, fmt.Errorf("parser: %w: unknown provider %q (valid: hosted, local)", config.ErrInvalid, s.Provider)
	}
}
