// Package abi defines the data exchanged with guests across linear memory.
//
// Pointers and lengths travel packed in one i64: the upper 32 bits hold the
// pointer and the lower 32 bits the length. Payloads are JSON.
package abi

import (
	"net/http"
	"sort"
	"strings"
)

// Guest exports used by the host.
const (
	ExportAllocate    = "allocate"
	ExportHandle      = "handle_http_request"
	ExportInitialize  = "_initialize"
	HostModuleName    = "spin_host"
	DefaultMaxPayload = 1 << 20
)

// PackPtrLen packs a pointer and length into a single i64.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen unpacks a pointer and length from a packed i64.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}

// Headers is an ordered list of name/value pairs. Names are lower-case.
type Headers [][2]string

// FromHTTP flattens h into pairs sorted by name. Multiple values of one
// header become separate pairs in their original order.
func FromHTTP(h http.Header) Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(h))
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			out = append(out, [2]string{lower, v})
		}
	}
	return out
}

// ToHTTP converts pairs into a canonical http.Header.
func (hs Headers) ToHTTP() http.Header {
	h := make(http.Header, len(hs))
	for _, kv := range hs {
		if kv[0] == "" {
			continue
		}
		h.Add(kv[0], kv[1])
	}
	return h
}

// Request is the payload handed to handle_http_request.
type Request struct {
	Method  string  `json:"method"`
	URI     string  `json:"uri"`
	Headers Headers `json:"headers"`
	Body    []byte  `json:"body,omitempty"`
}

// Response is the payload a guest returns from handle_http_request.
type Response struct {
	Status  int     `json:"status"`
	Headers Headers `json:"headers,omitempty"`
	Body    []byte  `json:"body,omitempty"`
}
