package wasmguest

import (
	"context"
	"testing"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/interp"
)

// cannedGuest assembles a module whose bridge_* exports return fixed
// replies laid out in data segments. bridge_alloc always hands out the
// same scratch buffer and bridge_free stores the freed pointer at
// address 0.
func cannedGuest(replies map[string]string) []byte {
	return cannedGuestAt(replies, 32768)
}

// cannedGuestAt is cannedGuest with bridge_alloc returning scratch.
func cannedGuestAt(replies map[string]string, scratch int64) []byte {
	exports := []string{ExportAlloc, ExportFree, ExportInit, ExportRender, ExportInvoke, ExportCommit}

	var types []byte
	types = append(types, uleb(3)...)
	types = append(types, 0x60, 0x01, 0x7f, 0x01, 0x7f)       // (i32) -> i32
	types = append(types, 0x60, 0x02, 0x7f, 0x7f, 0x00)       // (i32, i32)
	types = append(types, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e) // (i32, i32) -> i64

	funcs := append(uleb(uint64(len(exports))), 0, 1, 2, 2, 2, 2)

	memory := []byte{0x01, 0x00, 0x01}

	exp := uleb(uint64(len(exports) + 1))
	exp = append(exp, name(ExportMemory)...)
	exp = append(exp, 0x02, 0x00)
	for i, e := range exports {
		exp = append(exp, name(e)...)
		exp = append(exp, 0x00)
		exp = append(exp, uleb(uint64(i))...)
	}

	var data []byte
	offsets := map[string]uint64{}
	offset := uint64(16)
	calls := []string{ExportInit, ExportRender, ExportInvoke, ExportCommit}
	data = append(data, uleb(uint64(len(calls)))...)
	for _, c := range calls {
		reply := replies[c]
		if reply == "" {
			reply = `{"ok":null}`
		}
		data = append(data, 0x00, 0x41)
		data = append(data, sleb(int64(offset))...)
		data = append(data, 0x0b)
		data = append(data, uleb(uint64(len(reply)))...)
		data = append(data, reply...)
		offsets[c] = pack(uint32(offset), uint32(len(reply)))
		offset += uint64(len(reply)) + 16
	}

	code := uleb(uint64(len(exports)))
	code = append(code, body(append([]byte{0x41}, sleb(scratch)...))...)
	code = append(code, body([]byte{0x41, 0x00, 0x20, 0x00, 0x36, 0x02, 0x00})...)
	for _, c := range calls {
		code = append(code, body(append([]byte{0x42}, sleb(int64(offsets[c]))...))...)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(5, memory)...)
	out = append(out, section(7, exp)...)
	out = append(out, section(10, code)...)
	out = append(out, section(11, data)...)
	return out
}

func body(instrs []byte) []byte {
	b := append([]byte{0x00}, instrs...)
	b = append(b, 0x0b)
	return append(uleb(uint64(len(b))), b...)
}

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint64(len(content)))...), content...)
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func TestGuestLifecycle(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, cannedGuest(map[string]string{
		ExportRender: `{"ok":{"tree":{"tag":"p","props":{},"children":["hi"]},"generation":1}}`,
		ExportInvoke: `{"ok":{"__state_changed":true,"value":null}}`,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close(ctx)

	if err := g.Init(ctx, interp.Payload{Source: "app", Root: "App"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	frame, err := g.RenderRoot(ctx)
	if err != nil {
		t.Fatalf("RenderRoot: %v", err)
	}
	if frame.Generation != 1 {
		t.Errorf("generation = %d", frame.Generation)
	}
	tree, ok := frame.Tree.(map[string]any)
	if !ok || tree["tag"] != "p" {
		t.Fatalf("tree = %#v", frame.Tree)
	}

	res, err := g.Invoke(ctx, "cb_1_x", map[string]any{"type": "click"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if m, ok := res.(map[string]any); !ok || m["__state_changed"] != true {
		t.Errorf("result = %#v", res)
	}

	g.Commit(frame.Generation)
}

func TestGuestErrors(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, cannedGuest(map[string]string{
		ExportRender: `{"error":{"kind":"evaluation_failure","message":"object 'x' not found"}}`,
		ExportInvoke: `{"error":{"kind":"callback_not_found","message":"gone"}}`,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close(ctx)

	if _, err := g.RenderRoot(ctx); errors.KindOf(err) != errors.KindNotInitialized {
		t.Fatalf("render before init: %v", err)
	}
	if err := g.Init(ctx, interp.Payload{Source: "app", Root: "App"}); err != nil {
		t.Fatal(err)
	}

	_, err = g.RenderRoot(ctx)
	if !errors.Is(err, errors.ErrEvaluationFailure) {
		t.Errorf("render error = %v", err)
	}

	_, err = g.Invoke(ctx, "cb_9_dead", nil)
	if !errors.Is(err, errors.ErrCallbackNotFound) {
		t.Fatalf("invoke error = %v", err)
	}
	var be *errors.Error
	if !errors.As(err, &be) || be.Detail == "" {
		t.Errorf("error detail missing: %#v", err)
	}
}

func TestGuestVersionMismatch(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, cannedGuest(map[string]string{
		ExportInit: `{"error":{"kind":"version_mismatch","message":"guest speaks abi 2"}}`,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close(ctx)

	err = g.Init(ctx, interp.Payload{Source: "app", Root: "App"})
	if errors.KindOf(err) != errors.KindVersionMismatch {
		t.Fatalf("init error = %v", err)
	}
	if _, err := g.RenderRoot(ctx); errors.KindOf(err) != errors.KindNotInitialized {
		t.Errorf("render after failed init: %v", err)
	}
}

func TestGuestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		wasm []byte
		kind errors.Kind
	}{
		{"empty module", []byte("\x00asm\x01\x00\x00\x00"), errors.KindNotFound},
		{"not wasm", []byte("nope"), errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.wasm)
			if err == nil {
				t.Fatal("expected error")
			}
			var be *errors.Error
			if !errors.As(err, &be) {
				t.Fatalf("not a bridge error: %v", err)
			}
			if be.Phase != errors.PhaseLoad || be.Kind != tt.kind {
				t.Errorf("got %s/%s, want load/%s", be.Phase, be.Kind, tt.kind)
			}
		})
	}
}

func TestGuestFreesOnWriteFailure(t *testing.T) {
	tests := []struct {
		name    string
		scratch uint32
		kind    errors.Kind
	}{
		{"out of bounds", 65530, errors.KindInvalidData},
		{"in bounds", 32768, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			g, err := New(ctx, cannedGuestAt(nil, int64(tt.scratch)))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer g.Close(ctx)

			err = g.Init(ctx, interp.Payload{Source: "app", Root: "App"})
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("Init: %v", err)
				}
			} else if errors.KindOf(err) != tt.kind {
				t.Fatalf("Init error = %v, want %s", err, tt.kind)
			}

			freed, ok := g.memory.ReadUint32Le(0)
			if !ok {
				t.Fatal("read freed pointer")
			}
			if tt.kind != "" && freed != tt.scratch {
				t.Errorf("last freed = %d, want %d", freed, tt.scratch)
			}
			if tt.kind == "" && freed == 0 {
				t.Error("nothing freed")
			}
		})
	}
}

func TestGuestClosed(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, cannedGuest(nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Init(ctx, interp.Payload{Source: "app", Root: "App"}); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("init after close = %v", err)
	}
	if err := g.Close(ctx); err != nil {
		t.Errorf("second close = %v", err)
	}
}

func TestPack(t *testing.T) {
	ptr, size := unpack(pack(70000, 12))
	if ptr != 70000 || size != 12 {
		t.Errorf("unpack = %d, %d", ptr, size)
	}
}
