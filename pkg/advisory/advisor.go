package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/treatment-compliance-server/internal/domain"
)

// Advisor is the resilient advisory fallback: cache lookup, then a circuit-broken
// model call, then response parsing. Only successful opinions are cached.
// Failures are returned to the caller, which decides how to degrade.
type Advisor struct {
	logger    *logrus.Logger
	completer Completer
	cache     Cache
	cacheTTL  time.Duration
	breaker   *gobreaker.CircuitBreaker
}

// NewAdvisor wraps a completer with a circuit breaker and an optional cache.
func NewAdvisor(logger *logrus.Logger, completer Completer, cache Cache, cacheTTL time.Duration, breakerConfig domain.CircuitBreakerConfig) *Advisor {
	a := &Advisor{
		logger:    logger,
		completer: completer,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
	a.breaker = gobreaker.NewCircuitBreaker(breakerSettings(logger, completer.Name(), breakerConfig))
	return a
}

func breakerSettings(logger *logrus.Logger, name string, cfg domain.CircuitBreakerConfig) gobreaker.Settings {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}

	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Advisory circuit breaker changed state")
		},
	}
}

// AssessTreatment returns the model's opinion on one drug.
func (a *Advisor) AssessTreatment(ctx context.Context, req *domain.AdvisoryRequest) (*domain.AdvisoryOpinion, error) {
	if req == nil {
		return nil, fmt.Errorf("advisory request is required")
	}

	key := CacheKey(req)
	if a.cache != nil {
		if cached, found, err := a.cache.Get(ctx, key); err == nil && found {
			a.logger.WithFields(logrus.Fields{
				"treatment":   req.Treatment,
				"cancer_type": req.CancerType,
			}).Debug("Advisory cache hit")
			return cached, nil
		} else if err != nil {
			a.logger.WithError(err).Warn("Advisory cache lookup failed")
		}
	}

	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		content, err := a.completer.Complete(ctx, SystemPrompt, BuildPrompt(req))
		if err != nil {
			return nil, err
		}
		return ParseOpinion(content)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit breaker open", domain.ErrAdvisoryUnavailable, a.completer.Name())
		}
		return nil, fmt.Errorf("advisory query failed: %w", err)
	}

	opinion := result.(*domain.AdvisoryOpinion)
	a.logger.WithFields(logrus.Fields{
		"provider":    a.completer.Name(),
		"treatment":   req.Treatment,
		"cancer_type": req.CancerType,
		"confidence":  opinion.Confidence,
		"duration":    time.Since(start),
	}).Debug("Advisory opinion received")

	if a.cache != nil {
		if cacheErr := a.cache.Set(ctx, key, opinion, a.cacheTTL); cacheErr != nil {
			// Log cache error but don't fail the request
			a.logger.WithError(cacheErr).Warn("Failed to cache advisory opinion")
		}
	}
	return opinion, nil
}

// BreakerState reports the circuit breaker state.
func (a *Advisor) BreakerState() gobreaker.State {
	return a.breaker.State()
}

// BreakerCounts reports the circuit breaker counters.
func (a *Advisor) BreakerCounts() gobreaker.Counts {
	return a.breaker.Counts()
}

// Close releases the cache.
func (a *Advisor) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

// NewFromConfig builds the configured provider. It returns nil when the provider
// is "none" or no API key is available; callers then score with the default opinion.
func NewFromConfig(logger *logrus.Logger, cfg domain.AdvisoryConfig, cache Cache, cacheTTL time.Duration) (*Advisor, error) {
	chat := ChatConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	var completer Completer
	switch cfg.Provider {
	case "", "deepseek":
		completer = NewChatClient(chat)
	case "anthropic":
		completer = NewAnthropicClient(chat)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown advisory provider %q", cfg.Provider)
	}

	if cfg.APIKey == "" {
		logger.WithField("provider", completer.Name()).Warn("Advisory API key not configured, advisory fallback disabled")
		return nil, nil
	}
	return NewAdvisor(logger, completer, cache, cacheTTL, cfg.Breaker), nil
}
