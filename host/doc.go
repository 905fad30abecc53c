// Package host compiles components and runs them in isolated instances.
//
// A Pool owns one wazero runtime per component, sized by the component's
// memory limit, with WASI and the spin_host module instantiated on it. Every
// request gets its own ExecutionContext: a fresh anonymous module instance
// with private stdio, a deadline and the host-side Guest state. Closing the
// context releases everything it accounted for.
//
// The Loader turns a descriptor file into a validated entities.App.
package host
