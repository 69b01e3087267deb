package dispatch

import "context"

// Watcher is callback-style sugar over Subscribe for local consumers that
// would rather register handlers than manage a channel themselves. It
// adds no semantics beyond Subscribe: the same catch-up replay applies,
// and OnJoin/OnLeave fire in the order events arrive on the channel.
type Watcher struct {
	OnJoin  func(Endpoint, Meta)
	OnLeave func(Endpoint, Meta)
}

// Watch subscribes to typ and dispatches every event to w's callbacks
// until ctx is canceled. A nil callback for a given event kind silently
// drops events of that kind. The returned cancel func stops the
// underlying subscription; Watch also stops on ctx cancellation.
func (r *Registry) Watch(ctx context.Context, typ ServiceType, w Watcher) (func(), error) {
	events, cancel, err := r.Subscribe(ctx, typ)
	if err != nil {
		return nil, err
	}

	go func() {
		for ev := range events {
			switch ev.Kind {
			case EventJoin:
				if w.OnJoin != nil {
					w.OnJoin(ev.Endpoint, ev.Meta)
				}
			case EventLeave:
				if w.OnLeave != nil {
					w.OnLeave(ev.Endpoint, ev.Meta)
				}
			}
		}
	}()

	return cancel, nil
}
