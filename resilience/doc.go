// Package resilience provides the admission and fault-isolation primitives
// used around model workers and their backends.
//
//   - Gate: bounds in-flight requests, waiting up to a limit or rejecting
//   - CircuitBreaker: fails fast while a backend keeps failing
//   - Retry: retries an operation with exponential backoff
//
// A request holds a gate ticket for its whole lifetime:
//
//	ticket, err := gate.Acquire(ctx)
//	if err != nil {
//	    return errors.Overloaded(gate.InFlight())
//	}
//	defer ticket.Release()
package resilience
