// Package script compiles component source written in Starlark.
//
// Components are plain functions returning elements. The predeclared
// environment provides the hooks and the tag builders:
//
//	def Counter():
//	    count, set_count = use_state(0)
//	    return div(
//	        p("Clicked ", str(count), " times"),
//	        button("+1", on_click = lambda: set_count(lambda n: n + 1)),
//	        class_name = "counter",
//	    )
//
// Keyword arguments become props and positional arguments become children.
// Callables passed as props are registered with the render session.
// load("widgets.star", "card") loads a package resolved from the payload's
// requirements.
package script
