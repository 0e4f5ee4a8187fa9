package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoVisionProvider is returned for image requests when every registered
// provider is text-only.
var ErrNoVisionProvider = errors.New("no vision-capable AI provider registered")

// RegisterOption configures a provider registration.
type RegisterOption func(*route)

// TextOnly marks a provider that cannot read images. Requests carrying
// images skip it.
func TextOnly() RegisterOption {
	return func(r *route) { r.textOnly = true }
}

type route struct {
	name     string
	provider Provider
	textOnly bool
}

// Router tries registered providers in registration order.
type Router struct {
	mu     sync.RWMutex
	routes []*route
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{}
}

// Register adds a provider. Registering a name again replaces the provider
// and keeps its position.
func (r *Router) Register(name string, provider Provider, opts ...RegisterOption) {
	rt := &route{name: name, provider: provider}
	for _, opt := range opts {
		opt(rt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.routes {
		if existing.name == name {
			r.routes[i] = rt
			return
		}
	}
	r.routes = append(r.routes, rt)
}

func hasImages(req CompletionRequest) bool {
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// Complete routes a request to the first eligible provider that succeeds.
// When all fail, the last error is wrapped so callers can still classify it.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	if len(routes) == 0 {
		return CompletionResponse{}, fmt.Errorf("no AI providers registered")
	}

	vision := hasImages(req)
	var (
		lastErr error
		tried   int
	)
	for _, rt := range routes {
		if vision && rt.textOnly {
			continue
		}
		tried++
		resp, err := rt.provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", rt.name,
				"task", req.Task.String(),
				"error", err,
			)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("AI request completed",
			"provider", rt.name,
			"task", req.Task.String(),
			"model", resp.Model,
			"images", vision,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	if tried == 0 {
		return CompletionResponse{}, ErrNoVisionProvider
	}
	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", lastErr)
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes) > 0
}

// HasVisionProvider reports whether any provider accepts images.
func (r *Router) HasVisionProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if !rt.textOnly {
			return true
		}
	}
	return false
}

// HealthCheck succeeds when any registered provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	var errs []error
	for _, rt := range routes {
		err := rt.provider.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", rt.name, err))
	}
	if len(errs) == 0 {
		return fmt.Errorf("no AI providers registered")
	}
	return errors.Join(errs...)
}
