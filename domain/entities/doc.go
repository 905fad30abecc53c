// Package entities provides the application model served by spinlet.
// An App is the in-memory form of a descriptor: its components, their
// routes, egress allow-lists, resource limits and mounts.
package entities
