package game

import "sync"

// Directory maps player identities to the single connection currently
// speaking for them, and back.
type Directory struct {
	mu         sync.RWMutex
	byIdentity map[string]string
	byConn     map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		byIdentity: make(map[string]string),
		byConn:     make(map[string]string),
	}
}

// Bind makes connID the current connection for identity. If another
// connection held the identity it is returned with replaced set.
func (d *Directory) Bind(identity, connID string) (previous string, replaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byConn[connID]; ok && old != identity {
		delete(d.byIdentity, old)
	}
	if cur, ok := d.byIdentity[identity]; ok {
		if cur == connID {
			return cur, false
		}
		delete(d.byConn, cur)
		previous, replaced = cur, true
	}
	d.byIdentity[identity] = connID
	d.byConn[connID] = identity
	return previous, replaced
}

// Unbind releases connID. It reports the identity only when connID was
// still the current connection for it; stale connections are ignored.
func (d *Directory) Unbind(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byConn[connID]
	if !ok {
		return "", false
	}
	delete(d.byConn, connID)
	if d.byIdentity[identity] != connID {
		return "", false
	}
	delete(d.byIdentity, identity)
	return identity, true
}

// Lookup returns the current connection for identity.
func (d *Directory) Lookup(identity string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	connID, ok := d.byIdentity[identity]
	return connID, ok
}

// IdentityOf returns the identity connID speaks for.
func (d *Directory) IdentityOf(connID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	identity, ok := d.byConn[connID]
	return identity, ok
}

// Forget drops any binding for identity.
func (d *Directory) Forget(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if connID, ok := d.byIdentity[identity]; ok {
		delete(d.byConn, connID)
		delete(d.byIdentity, identity)
	}
}

// Clear drops every binding.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byIdentity = make(map[string]string)
	d.byConn = make(map[string]string)
}

// Len returns the number of bound identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byIdentity)
}
