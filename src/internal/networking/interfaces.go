package networking

// RouteTable reads and mutates the OS forwarding table.
type RouteTable interface {
	// ForwardTable returns the entries of the main table for family, in OS order.
	ForwardTable(family Family) ([]ForwardEntry, error)
	// Create installs entry. An existing entry with the same key is overwritten.
	Create(entry ForwardEntry) error
	// Delete removes entry. Deleting an entry that does not exist succeeds.
	Delete(entry ForwardEntry) error
}

// InterfaceTable reads interface state.
type InterfaceTable interface {
	// Interfaces returns every interface with its state for family, in OS order.
	Interfaces(family Family) ([]InterfaceInfo, error)
	// InterfaceByID returns the interface with the given id for family.
	InterfaceByID(family Family, id InterfaceID) (InterfaceInfo, error)
	// InterfaceIDByAlias maps a human-readable name to an id.
	// It returns an error coded DEVICE_NAME_NOT_FOUND when there is no such interface.
	InterfaceIDByAlias(alias string) (InterfaceID, error)
}

// Subscription is an active change notification registration.
type Subscription interface {
	// Close stops delivery and waits for an in-flight callback to return.
	// It must not be called from inside that callback.
	Close() error
}

// ChangeNotifier delivers OS change notifications for one address family.
// Callbacks may run concurrently with each other and with other subscriptions.
type ChangeNotifier interface {
	SubscribeRouteChanges(family Family, cb func(RouteChange)) (Subscription, error)
	SubscribeInterfaceChanges(family Family, cb func(InterfaceChange)) (Subscription, error)
	SubscribeAddressChanges(family Family, cb func(AddressChange)) (Subscription, error)
}

// System is the full set of OS capabilities used by the route manager.
type System interface {
	RouteTable
	InterfaceTable
	ChangeNotifier
}
