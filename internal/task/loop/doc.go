// Package loop implements the periodic task primitive: a unit of work plus a
// fixed delay, invoked repeatedly on its own execution unit until cancelled.
//
// Lifecycle of one run:
//
//	Start ─► before hook (once)
//	      ─► invoke work ─► failure? tolerated kinds go to the FailureHandler,
//	                                 anything else ends the run with that error
//	      ─► still running? sleep for the interval (Cancel wakes it) and repeat
//	      ─► after hook (once) ─► Idle
//
// Cancellation is cooperative: Cancel never interrupts an in-flight
// invocation. It is observed after the invocation returns and while sleeping.
// Work runs once before the first sleep, so a 1s task cancelled at 3.5s has
// been invoked 4 times (at 0s, 1s, 2s and 3s).
//
// A Task created at package level can be bound to any number of host values
// with Bind; each binding is an independent Task that receives the host as
// Invocation.Receiver. Hosts that embed HostBindings keep their bindings
// themselves; other hosts stay bound until Unbind.
package loop
