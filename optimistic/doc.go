// Package optimistic keeps text inputs responsive while the interpreter
// round trip is slow.
//
// A Field shows every keystroke immediately and sends the value to the
// interpreter once typing pauses for the debounce delay. Each edit takes a
// sequence number from a Sequencer shared by the mount; the request carries
// the sequence of the edit it reports. Renders stamp controlled inputs with
// the sequence of the edit that caused them, and Field.Confirm drops any
// stamped value older than the newest local edit:
//
//	type "he"   seq 1  display "he"
//	type "hel"  seq 2  display "hel"
//	  debounce fires, request (2, "hel")
//	type "hell" seq 3  display "hell"
//	render stamped 2   dropped, 2 < 3
//	  debounce fires, request (3, "hell")
//	render stamped 3   accepted
package optimistic
