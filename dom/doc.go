// Package dom is the retained UI tree that rendered elements are committed to.
//
// A Node is either an element or a text node. Elements carry camelCase
// attributes, a style map, event listeners keyed by native event type and,
// for controlled text inputs, a Control that owns the displayed value.
// A Mount holds the committed root and, after a failure, the error fallback.
package dom
