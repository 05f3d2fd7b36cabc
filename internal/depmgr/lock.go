package depmgr

import "sync"

// globalLock serializes every call into the resolver chain. The
// resolver library this façade wraps keeps process-wide mutable state
// (a default document builder, a default message logger) and is not
// safe for concurrent use; every exported operation acquires this lock
// for its entire duration, mirroring the teacher's pattern of guarding
// non-reentrant shared state with a package-level mutex rather than
// threading a lock object through every call site.
var globalLock sync.Mutex

// withLock runs fn while holding the process-wide serialization lock.
func withLock(fn func() error) error {
	globalLock.Lock()
	defer globalLock.Unlock()
	return fn()
}
