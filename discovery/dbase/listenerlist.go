package dbase

import (
	"sync"

	"github.com/relex/peer-forwarder/base"
	"golang.org/x/exp/slices"
)

// ListenerList maintains the listeners of a PeerListProvider
//
// It's safe to add or remove listeners concurrently with notifications
type ListenerList struct {
	mutex     sync.Mutex
	listeners []base.PeerListListener
}

// Add adds a listener, no-op if it's already added
func (list *ListenerList) Add(listener base.PeerListListener) {
	list.mutex.Lock()
	defer list.mutex.Unlock()
	if slices.Contains(list.listeners, listener) {
		return
	}
	list.listeners = append(list.listeners, listener)
}

// Remove removes a listener, no-op if it doesn't exist
func (list *ListenerList) Remove(listener base.PeerListListener) {
	list.mutex.Lock()
	defer list.mutex.Unlock()
	if i := slices.Index(list.listeners, listener); i >= 0 {
		list.listeners = slices.Delete(list.listeners, i, i+1)
	}
}

// Len returns the numbers of registered listeners
func (list *ListenerList) Len() int {
	list.mutex.Lock()
	defer list.mutex.Unlock()
	return len(list.listeners)
}

// Notify calls all listeners with a copy of the given peer list
//
// Listeners are called outside of lock on the caller's goroutine, in the order of addition
func (list *ListenerList) Notify(peers []string) {
	list.mutex.Lock()
	snapshot := slices.Clone(list.listeners)
	list.mutex.Unlock()

	for _, listener := range snapshot {
		listener.OnPeerListChanged(slices.Clone(peers))
	}
}
