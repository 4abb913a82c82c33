// Package vdom is the typed view of the virtual element wire shape.
//
//	Element   := { tag: String, props: Map<String, PropValue>, children: [Node] }
//	Node      := Element | String | Number | Boolean | Null
//	PropValue := Scalar | [Scalar] | Map<String,Scalar> | CallbackRef | Element
//	CallbackRef := { callback_id: String }
//
// Decode classifies every prop exactly once: event props (on_click, onClick)
// become EventHandler, element-shaped values become NestedElement, and the
// rest are Attribute. Code downstream switches on the variant.
package vdom
