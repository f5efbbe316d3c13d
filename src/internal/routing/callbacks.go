package routing

import (
	"sync"

	"github.com/google/uuid"
	"github.com/maksimkurb/tunroute/src/internal/log"
)

// DefaultRouteChangedCallback receives default route events of both families.
type DefaultRouteChangedCallback func(event DefaultRouteEvent)

// CallbackHandle identifies a registered callback.
type CallbackHandle struct {
	id uuid.UUID
}

func (h CallbackHandle) String() string {
	return h.id.String()
}

// callbackRegistry has its own lock so that registering never waits for a dispatch.
type callbackRegistry struct {
	mu        sync.Mutex
	callbacks map[CallbackHandle]DefaultRouteChangedCallback
	order     []CallbackHandle
}

func (r *callbackRegistry) register(cb DefaultRouteChangedCallback) CallbackHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.callbacks == nil {
		r.callbacks = make(map[CallbackHandle]DefaultRouteChangedCallback)
	}
	h := CallbackHandle{id: uuid.New()}
	r.callbacks[h] = cb
	r.order = append(r.order, h)
	return h
}

func (r *callbackRegistry) unregister(h CallbackHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.callbacks[h]; !ok {
		return false
	}
	delete(r.callbacks, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *callbackRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

// dispatch calls every callback registered at the time of the call, in registration order.
// Callbacks run without the registry lock held and a panicking callback does not stop the rest.
func (r *callbackRegistry) dispatch(event DefaultRouteEvent) {
	r.mu.Lock()
	snapshot := make([]DefaultRouteChangedCallback, 0, len(r.order))
	for _, h := range r.order {
		snapshot = append(snapshot, r.callbacks[h])
	}
	r.mu.Unlock()

	for _, cb := range snapshot {
		invokeCallback(cb, event)
	}
}

func invokeCallback(cb DefaultRouteChangedCallback, event DefaultRouteEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Default route changed callback failed: %v", rec)
		}
	}()
	cb(event)
}
