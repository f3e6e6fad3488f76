package base

// PeerListProvider supplies the current list of peer addresses and notifies listeners on changes
type PeerListProvider interface {

	// GetPeerList returns the current peer addresses, sorted
	GetPeerList() []string

	// AddListener registers a listener to be notified with the full new list on every membership change
	AddListener(listener PeerListListener)

	// RemoveListener unregisters a listener, no-op if unknown
	RemoveListener(listener PeerListListener)

	// Close stops background refreshing or watching, if any
	Close()
}

// PeerListListener receives snapshots of the peer list
//
// Implementations must be comparable (e.g. pointer receivers) to be removable
type PeerListListener interface {
	OnPeerListChanged(peers []string)
}
