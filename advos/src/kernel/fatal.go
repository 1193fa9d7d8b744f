package kernel

import "caller"

// Fatal logs msg and keysAndValues as a structured error, dumps the
// call stack that led here, and panics. Mirrors original_source's
// panic()/kassert() path: an invariant violation halts the system
// rather than returning an error code, carrying forward Biscuit's
// caller.Callerdump diagnostic dump (run on an ordinary goroutine
// stack here, since this simulation has no dedicated panic stack to
// switch onto).
func (k *Kvar_t) Fatal(msg string, keysAndValues ...interface{}) {
	if k.Log != nil {
		k.Log.Errorw(msg, keysAndValues...)
	}
	caller.Callerdump(2)
	panic(msg)
}
