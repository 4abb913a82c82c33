// Package session holds the state that survives between renders of one
// mounted root component: positional hook slots, the callback registry and
// the pending event sequence.
//
// A render follows the hook-index protocol:
//
//	s.BeginRender()          // hook index back to 0, slots untouched
//	count := s.UseState(value.Int(0))
//	...                      // build elements, register closures
//	err := s.EndRender()     // hook order checked here
//
// Closures registered during a render are stored under ids of the form
// cb_<counter>_<salt> and invoked later through Invoke. An invocation that
// wrote state returns the marker list {__state_changed = TRUE, value = ...}
// so the dispatcher knows a re-render is due.
//
// A Session is owned by one scheduler and is not safe for concurrent use.
package session
