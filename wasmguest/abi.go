package wasmguest

import (
	"encoding/json"

	"github.com/wippyai/uibridge/errors"
)

// Export names of the guest ABI.
const (
	ExportMemory = "memory"
	ExportAlloc  = "bridge_alloc"
	ExportFree   = "bridge_free"
	ExportInit   = "bridge_init"
	ExportRender = "bridge_render"
	ExportInvoke = "bridge_invoke"
	ExportCommit = "bridge_commit"
)

// HostModule is the import namespace of host functions.
const HostModule = "uibridge"

var requiredExports = []string{
	ExportAlloc, ExportFree, ExportInit, ExportRender, ExportInvoke, ExportCommit,
}

// Log levels accepted by uibridge.log.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

type initRequest struct {
	ABI      int             `json:"abi"`
	Source   string          `json:"source"`
	Root     string          `json:"root"`
	Name     string          `json:"name,omitempty"`
	Packages []packageSource `json:"packages,omitempty"`
}

type packageSource struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Source  string `json:"source"`
}

type renderReply struct {
	Tree       any    `json:"tree"`
	Generation uint64 `json:"generation"`
}

type invokeRequest struct {
	Event map[string]any `json:"event,omitempty"`
	ID    string         `json:"id"`
}

type commitRequest struct {
	Generation uint64 `json:"generation"`
}

type envelope struct {
	OK    json.RawMessage `json:"ok,omitempty"`
	Error *guestError     `json:"error,omitempty"`
}

type guestError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Index   int    `json:"index,omitempty"`
}

// toError maps a guest-reported failure onto the bridge taxonomy.
func (g *guestError) toError(call, id string) error {
	switch errors.Kind(g.Kind) {
	case errors.KindCallbackNotFound:
		return errors.CallbackNotFound(id)
	case errors.KindHookOrder:
		return errors.HookOrderViolation(g.Index, g.Message)
	case errors.KindNotFound:
		return errors.New(errors.PhaseLoad, errors.KindNotFound).Detail("%s", g.Message).Build()
	case errors.KindInvalidData:
		return errors.ParseFailed(call, errorString(g.Message))
	case errors.KindVersionMismatch:
		return errors.New(errors.PhaseLoad, errors.KindVersionMismatch).Detail("%s", g.Message).Build()
	}
	return errors.New(errors.PhaseGuest, errors.KindEvaluationFailure).
		Detail("%s: %s", call, g.Message).
		Value(g.Kind).
		Build()
}

type errorString string

func (e errorString) Error() string { return string(e) }

func pack(ptr, size uint32) uint64 { return uint64(ptr)<<32 | uint64(size) }

func unpack(v uint64) (ptr, size uint32) { return uint32(v >> 32), uint32(v) }
