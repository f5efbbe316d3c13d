//go:build linux

package networking

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const updateBufferSize = 64

var (
	resubscribeInitialBackoff = 100 * time.Millisecond
	resubscribeMaxBackoff     = 5 * time.Second
)

// netlinkSubscription pumps updates from a netlink multicast socket into a callback.
type netlinkSubscription struct {
	done      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

func newNetlinkSubscription() *netlinkSubscription {
	return &netlinkSubscription{
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Close implements Subscription.
func (s *netlinkSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.drained
	return nil
}

// pump delivers updates until the subscription is closed. When netlink closes ch on its own
// the subscription is reopened with open and resync is called, as updates may have been lost.
func pump[T any](s *netlinkSubscription, kind string, ch chan T, open func(chan<- T) error, deliver func(T), resync func()) {
	defer close(s.drained)

	for {
		select {
		case <-s.done:
			// netlink closes ch once it notices done; keep its sender from blocking.
			go func(ch chan T) {
				for range ch {
				}
			}(ch)
			return
		case u, ok := <-ch:
			if !ok {
				log.Warnf("Netlink %s subscription terminated, resubscribing", kind)
				if ch = resubscribe(s, kind, open); ch == nil {
					return
				}
				log.Infof("Netlink %s subscription restored", kind)
				resync()
				continue
			}
			select {
			case <-s.done:
				continue
			default:
			}
			deliver(u)
		}
	}
}

// resubscribe retries open with exponential backoff. It returns nil once the subscription is closed.
func resubscribe[T any](s *netlinkSubscription, kind string, open func(chan<- T) error) chan T {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = resubscribeInitialBackoff
	b.MaxInterval = resubscribeMaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ch := make(chan T, updateBufferSize)
		if err := open(ch); err != nil {
			log.Warnf("Failed to resubscribe to netlink %s updates: %v", kind, err)
			continue
		}
		return ch
	}
}

func subscriptionErrorCallback(kind string) func(error) {
	return func(err error) {
		log.Warnf("Netlink %s subscription error: %v", kind, err)
	}
}

// SubscribeRouteChanges implements ChangeNotifier. Only main-table routes of family are reported.
func (s *NetlinkSystem) SubscribeRouteChanges(family Family, cb func(RouteChange)) (Subscription, error) {
	sub := newNetlinkSubscription()
	open := func(ch chan<- netlink.RouteUpdate) error {
		return s.routeSubscribe(ch, sub.done, netlink.RouteSubscribeOptions{
			ErrorCallback: subscriptionErrorCallback("route"),
		})
	}

	ch := make(chan netlink.RouteUpdate, updateBufferSize)
	if err := open(ch); err != nil {
		return nil, errors.NewSubscribeError(fmt.Sprintf("failed to subscribe to %s route changes", family), err)
	}

	go pump(sub, "route", ch, open, func(u netlink.RouteUpdate) {
		if u.Family != 0 && u.Family != family.netlinkFamily() {
			return
		}
		if u.Table != 0 && u.Table != unix.RT_TABLE_MAIN {
			return
		}

		kind := NotifyAdd
		if u.Type == unix.RTM_DELROUTE {
			kind = NotifyDelete
		}
		for _, e := range entriesFromRoute(family, u.Route) {
			cb(RouteChange{Type: kind, Entry: e})
		}
	}, func() {
		cb(RouteChange{Type: NotifyResync})
	})

	return sub, nil
}

// SubscribeInterfaceChanges implements ChangeNotifier. Link state has no family, so every
// link change is reported.
func (s *NetlinkSystem) SubscribeInterfaceChanges(family Family, cb func(InterfaceChange)) (Subscription, error) {
	sub := newNetlinkSubscription()
	open := func(ch chan<- netlink.LinkUpdate) error {
		return s.linkSubscribe(ch, sub.done, netlink.LinkSubscribeOptions{
			ErrorCallback: subscriptionErrorCallback("link"),
		})
	}

	ch := make(chan netlink.LinkUpdate, updateBufferSize)
	if err := open(ch); err != nil {
		return nil, errors.NewSubscribeError(fmt.Sprintf("failed to subscribe to %s interface changes", family), err)
	}

	go pump(sub, "link", ch, open, func(u netlink.LinkUpdate) {
		if u.Link == nil {
			return
		}

		kind := NotifyParameterChange
		if u.Header.Type == unix.RTM_DELLINK {
			kind = NotifyDelete
		}
		cb(InterfaceChange{Type: kind, Interface: InterfaceID(u.Link.Attrs().Index)})
	}, func() {
		cb(InterfaceChange{Type: NotifyResync})
	})

	return sub, nil
}

// SubscribeAddressChanges implements ChangeNotifier.
func (s *NetlinkSystem) SubscribeAddressChanges(family Family, cb func(AddressChange)) (Subscription, error) {
	sub := newNetlinkSubscription()
	open := func(ch chan<- netlink.AddrUpdate) error {
		return s.addrSubscribe(ch, sub.done, netlink.AddrSubscribeOptions{
			ErrorCallback: subscriptionErrorCallback("address"),
		})
	}

	ch := make(chan netlink.AddrUpdate, updateBufferSize)
	if err := open(ch); err != nil {
		return nil, errors.NewSubscribeError(fmt.Sprintf("failed to subscribe to %s address changes", family), err)
	}

	go pump(sub, "address", ch, open, func(u netlink.AddrUpdate) {
		addr := addrFromIP(u.LinkAddress.IP)
		if !addr.IsValid() || FamilyOf(addr) != family {
			return
		}

		kind := NotifyDelete
		if u.NewAddr {
			kind = NotifyAdd
		}
		cb(AddressChange{Type: kind, Interface: InterfaceID(u.LinkIndex), Address: addr})
	}, func() {
		cb(AddressChange{Type: NotifyResync})
	})

	return sub, nil
}
