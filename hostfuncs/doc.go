// Package hostfuncs implements the host functions spinlet exposes to guests.
//
// Handlers are plain Go functions over JSON payloads with no WASM runtime
// dependency; infrastructure/wazero binds a HandlerRegistry to guest memory.
// Per-execution state (component id, egress policy, outbound budget, key-value
// stores) travels in the call context as a *Guest.
package hostfuncs
