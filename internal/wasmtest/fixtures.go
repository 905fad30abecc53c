package wasmtest

import (
	"encoding/base64"
	"strconv"

	"github.com/spinlet-dev/spinlet/internal/abi"
)

const (
	heapStart  = 16384
	spinPages  = 4
	staticData = 256

	counterSlot int32 = staticData + int32(len(`{"status":20`))
)

// spinModule returns a module with memory and the allocate export. The
// allocator is a bump allocator over a mutable global.
func spinModule() *Module {
	m := New().Memory(spinPages)
	heap := m.Global(heapStart)
	m.Func("allocate", []byte{I32}, []byte{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
	return m
}

func packed(ptr, length int) [][]byte {
	return [][]byte{
		I64Const(int64(ptr)), I64Const(32), I64Shl,
		I64Const(int64(length)), I64Or,
	}
}

func handler(m *Module, body ...[]byte) {
	m.Func("handle_http_request", []byte{I32, I32}, []byte{I64}, nil, body...)
}

// SpinStatic answers every request with response, a JSON document in the
// guest response format.
func SpinStatic(response string) []byte {
	m := spinModule()
	m.Data(staticData, []byte(response))
	handler(m, packed(staticData, len(response))...)
	return m.Bytes()
}

// SpinCounter answers with status 200+n where n counts the invocations of
// this instance. A fresh instance therefore always answers 201.
func SpinCounter() []byte {
	response := `{"status":200,"headers":[["content-type","text/plain"]],"body":"aGVsbG8="}`
	m := spinModule()
	m.Data(staticData, []byte(response))
	count := m.Global(0)
	body := [][]byte{
		GlobalGet(count), I32Const(1), I32Add, GlobalSet(count),
		I32Const(counterSlot), GlobalGet(count), I32Const('0'), I32Add, I32Store8,
	}
	handler(m, append(body, packed(staticData, len(response))...)...)
	return m.Bytes()
}

// SpinOutbound performs one outbound_http call with request, a JSON
// outbound request, and returns the host's answer as its own response.
func SpinOutbound(request string) []byte {
	m := New()
	outbound := m.Import(abi.HostModuleName, "outbound_http", []byte{I64}, []byte{I64})
	m.Memory(spinPages)
	heap := m.Global(heapStart)
	m.Func("allocate", []byte{I32}, []byte{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
	m.Data(staticData, []byte(request))
	body := packed(staticData, len(request))
	handler(m, append(body, Call(outbound))...)
	return m.Bytes()
}

// splice appends the instructions that build a guest response from prefix,
// stored at staticData, followed by the payload at src minus its first skip
// bytes. The payload is copied right behind the prefix and the packed
// ptr/len of the result is left on the stack.
func splice(prefix string, srcPtr, srcLen []byte, skip int32) [][]byte {
	n := int32(len(prefix))
	return [][]byte{
		I32Const(staticData + n),
		srcPtr, I32Const(skip), I32Add,
		srcLen, I32Const(skip), I32Sub,
		MemoryCopy,
		I64Const(staticData), I64Const(32), I64Shl,
		srcLen, I32Const(n - skip), I32Add, I64ExtendU,
		I64Or,
	}
}

// SpinEcho answers 200 with the headers of the request it received, the
// synthetic spin-* headers included, and the request body as its body.
func SpinEcho() []byte {
	const prefix = `{"status":200,`
	m := spinModule()
	m.Data(staticData, []byte(prefix))
	// The request object minus its opening brace supplies "headers" and
	// "body"; "method" and "uri" are ignored by the host.
	handler(m, splice(prefix, LocalGet(0), LocalGet(1), 1)...)
	return m.Bytes()
}

// SpinKeyValue stores value under key in the default store with kv_set,
// reads it back with kv_get and answers 200 with the value as the body.
func SpinKeyValue(key, value string) []byte {
	const (
		prefix = `{"status":200,"body":`
		setAt  = 1024
		getAt  = 2048
	)
	setReq := `{"key":"` + key + `","value":"` + base64.StdEncoding.EncodeToString([]byte(value)) + `"}`
	getReq := `{"key":"` + key + `"}`

	m := New()
	kvSet := m.Import(abi.HostModuleName, "kv_set", []byte{I64}, []byte{I64})
	kvGet := m.Import(abi.HostModuleName, "kv_get", []byte{I64}, []byte{I64})
	m.Memory(spinPages)
	heap := m.Global(heapStart)
	m.Func("allocate", []byte{I32}, []byte{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
	m.Data(staticData, []byte(prefix))
	m.Data(setAt, []byte(setReq))
	m.Data(getAt, []byte(getReq))

	const result = 2 // i64 local holding the packed kv_get answer
	body := append(packed(setAt, len(setReq)), Call(kvSet), Drop)
	body = append(body, packed(getAt, len(getReq))...)
	body = append(body, Call(kvGet), LocalSet(result))
	// {"value":"..." becomes {"status":200,"body":"..."
	body = append(body, splice(prefix,
		concat(LocalGet(result), I64Const(32), I64ShrU, I32WrapI64),
		concat(LocalGet(result), I32WrapI64),
		int32(len(`{"value":`)))...)
	m.Func("handle_http_request", []byte{I32, I32}, []byte{I64}, []byte{I64}, body...)
	return m.Bytes()
}

// SpinInitTrap exports an _initialize that hits unreachable.
func SpinInitTrap() []byte {
	m := spinModule()
	m.Func("_initialize", nil, nil, nil, Unreachable)
	handler(m, packed(staticData, 0)...)
	return m.Bytes()
}

// SpinImport is a Spin guest that imports module.name, a function the host
// does not provide.
func SpinImport(module, name string) []byte {
	m := New()
	m.Import(module, name, []byte{I64}, []byte{I64})
	m.Memory(spinPages)
	heap := m.Global(heapStart)
	m.Func("allocate", []byte{I32}, []byte{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
	handler(m, packed(staticData, 0)...)
	return m.Bytes()
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// SpinLoop never returns from handle_http_request.
func SpinLoop() []byte {
	m := spinModule()
	handler(m, Loop, Br(0), End, I64Const(0))
	return m.Bytes()
}

// SpinTrap hits unreachable in handle_http_request.
func SpinTrap() []byte {
	m := spinModule()
	handler(m, Unreachable)
	return m.Bytes()
}

// SpinMissingHandler exports allocate but no handle_http_request.
func SpinMissingHandler() []byte {
	return spinModule().Bytes()
}

// Memory layout of the WAGI fixtures.
const (
	iovecs    = 0
	nwritten  = 16
	envCount  = 20
	envSize   = 24
	headerAt  = 64
	envPtrs   = 1024
	envBuffer = 4096
	wagiPages = 2
)

func wagiModule() (*Module, uint32) {
	m := New()
	fdWrite := m.Import("wasi_snapshot_preview1", "fd_write", []byte{I32, I32, I32, I32}, []byte{I32})
	m.Memory(wagiPages)
	return m, fdWrite
}

// WagiStatic writes stdout verbatim and returns from _start.
func WagiStatic(stdout string) []byte {
	m, fdWrite := wagiModule()
	m.Data(iovecs, iovec(headerAt, len(stdout)))
	m.Data(headerAt, []byte(stdout))
	m.Func("_start", nil, nil, nil,
		I32Const(1), I32Const(iovecs), I32Const(1), I32Const(nwritten), Call(fdWrite), Drop,
	)
	return m.Bytes()
}

// WagiEnv prints a text/plain CGI response whose body lists the environment,
// one NAME=value per line.
func WagiEnv() []byte {
	header := "Content-Type: text/plain\n\n"

	m := New()
	sizesGet := m.Import("wasi_snapshot_preview1", "environ_sizes_get", []byte{I32, I32}, []byte{I32})
	environGet := m.Import("wasi_snapshot_preview1", "environ_get", []byte{I32, I32}, []byte{I32})
	fdWrite := m.Import("wasi_snapshot_preview1", "fd_write", []byte{I32, I32, I32, I32}, []byte{I32})
	m.Memory(wagiPages)
	m.Data(iovecs, iovec(headerAt, len(header)))
	m.Data(headerAt, []byte(header))

	const i = 0
	m.Func("_start", nil, nil, []byte{I32},
		I32Const(envCount), I32Const(envSize), Call(sizesGet), Drop,
		I32Const(envPtrs), I32Const(envBuffer), Call(environGet), Drop,

		// Replace the NUL terminators with newlines.
		Block, Loop,
		LocalGet(i), I32Const(envSize), I32Load, I32GeU, BrIf(1),
		LocalGet(i), I32Const(envBuffer), I32Add, I32Load8U, I32Eqz,
		If,
		LocalGet(i), I32Const(envBuffer), I32Add, I32Const('\n'), I32Store8,
		End,
		LocalGet(i), I32Const(1), I32Add, LocalSet(i),
		Br(0),
		End, End,

		I32Const(iovecs+8), I32Const(envBuffer), I32Store,
		I32Const(iovecs+12), I32Const(envSize), I32Load, I32Store,
		I32Const(1), I32Const(iovecs), I32Const(2), I32Const(nwritten), Call(fdWrite), Drop,
	)
	return m.Bytes()
}

// WagiExit calls proc_exit(code) from _start.
func WagiExit(code int32) []byte {
	m := New()
	procExit := m.Import("wasi_snapshot_preview1", "proc_exit", []byte{I32}, nil)
	m.Memory(1)
	m.Func("_start", nil, nil, nil, I32Const(code), Call(procExit))
	return m.Bytes()
}

func iovec(ptr, length int) []byte {
	b := make([]byte, 8)
	putU32(b[0:4], uint32(ptr))
	putU32(b[4:8], uint32(length))
	return b
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// StatusResponse renders a minimal guest response with status and a text body.
func StatusResponse(status int, body string) string {
	return `{"status":` + strconv.Itoa(status) + `,"headers":[["content-type","text/plain"]],"body":"` + base64.StdEncoding.EncodeToString([]byte(body)) + `"}`
}
