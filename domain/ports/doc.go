// Package ports defines the collaborator interfaces of the serving core.
// Domain and application code depend on these abstractions; adapters under
// infrastructure/ and host/ implement them.
package ports
