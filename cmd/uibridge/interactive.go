package main

import (
	"context"
	"fmt"

	"github.com/wippyai/uibridge/interp"
	"github.com/wippyai/uibridge/runtime"
	"github.com/wippyai/uibridge/tui"
)

func runInteractive(ctx context.Context, rt *runtime.Runtime, p interp.Payload) error {
	title := p.Root
	if p.Name != "" {
		title = fmt.Sprintf("%s · %s", p.Name, p.Root)
	}
	return tui.Run(ctx, rt, tui.WithTitle(title))
}
