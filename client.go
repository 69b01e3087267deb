package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mailbox is the generic concurrent-message primitive an endpoint's owner
// supplies so client sugar can actually deliver a message — Dispatch itself
// only resolves *which* endpoint should receive it (§4.4's "interface only"
// scope: cast/call add no distributed-systems semantics of their own).
type Mailbox interface {
	// Cast delivers msg fire-and-forget.
	Cast(ctx context.Context, msg any) error
	// Call delivers msg and waits for a reply, honoring ctx's deadline.
	Call(ctx context.Context, msg any) (any, error)
}

// Resolver maps a resolved Endpoint to the Mailbox that can actually reach
// it. Callers own this mapping; Dispatch has no notion of how local_handle
// bytes become a deliverable address.
type Resolver func(Endpoint) (Mailbox, error)

// Client is the cast/call/multi_cast/multi_call sugar layered on top of a
// Registry's key resolution.
type Client struct {
	reg            *Registry
	resolve        Resolver
	defaultTimeout time.Duration
}

// NewClient builds a Client resolving endpoints through reg and delivering
// via resolve. defaultTimeout is used by Call/MultiCall when the caller
// passes a non-positive timeout.
func NewClient(reg *Registry, resolve Resolver, defaultTimeout time.Duration) *Client {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultConfig().DefaultTimeout
	}
	return &Client{reg: reg, resolve: resolve, defaultTimeout: defaultTimeout}
}

// Cast resolves one endpoint of typ for key and delivers msg fire-and-forget.
func (c *Client) Cast(ctx context.Context, typ ServiceType, key []byte, msg any) error {
	_, mb, err := c.resolveOne(typ, key)
	if err != nil {
		return err
	}
	if err := mb.Cast(ctx, msg); err != nil {
		return ErrServiceUnavailable
	}
	return nil
}

// Call resolves one endpoint of typ for key, delivers msg, and waits for a
// reply or timeout. A non-positive timeout uses the Client's default.
func (c *Client) Call(ctx context.Context, typ ServiceType, key []byte, msg any, timeout time.Duration) (any, error) {
	_, mb, err := c.resolveOne(typ, key)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := mb.Call(callCtx, msg)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrServiceUnavailable
	}
	return reply, nil
}

// MultiCast resolves up to n endpoints of typ for key and fans out a Cast to
// each. It returns ErrServiceUnavailable only if resolution itself failed;
// individual delivery failures are silent, matching Cast's fire-and-forget
// contract.
func (c *Client) MultiCast(ctx context.Context, n int, typ ServiceType, key []byte, msg any) error {
	eps, err := c.reg.FindMultiService(typ, key, n)
	if err != nil {
		return ErrServiceUnavailable
	}

	var wg sync.WaitGroup
	for _, ep := range eps {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			if mb, err := c.resolve(ep); err == nil {
				_ = mb.Cast(ctx, msg)
			}
		}()
	}
	wg.Wait()
	return nil
}

// CallResult is one endpoint's outcome from a MultiCall, collected in
// arbitrary order (§9 open question: multi_call result order is left
// unspecified).
type CallResult struct {
	Endpoint Endpoint
	Value    any
	Err      error
}

// MultiCall resolves up to n endpoints of typ for key and issues a parallel
// Call to each, returning once every call has completed or timed out.
func (c *Client) MultiCall(ctx context.Context, n int, typ ServiceType, key []byte, msg any, timeout time.Duration) ([]CallResult, error) {
	eps, err := c.reg.FindMultiService(typ, key, n)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	results := make(chan CallResult, len(eps))
	var wg sync.WaitGroup
	for _, ep := range eps {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			mb, err := c.resolve(ep)
			if err != nil {
				results <- CallResult{Endpoint: ep, Err: ErrServiceUnavailable}
				return
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			reply, err := mb.Call(callCtx, msg)
			if err != nil {
				if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
					results <- CallResult{Endpoint: ep, Err: ErrTimeout}
				} else {
					results <- CallResult{Endpoint: ep, Err: ErrServiceUnavailable}
				}
				return
			}
			results <- CallResult{Endpoint: ep, Value: reply}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]CallResult, 0, len(eps))
	for r := range results {
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) resolveOne(typ ServiceType, key []byte) (Endpoint, Mailbox, error) {
	ep, err := c.reg.FindService(typ, key)
	if err != nil {
		return Endpoint{}, nil, ErrServiceUnavailable
	}
	mb, err := c.resolve(ep)
	if err != nil {
		return Endpoint{}, nil, ErrServiceUnavailable
	}
	return ep, mb, nil
}
