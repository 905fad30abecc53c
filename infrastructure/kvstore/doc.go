// Package kvstore implements the key-value stores components declare in
// key_value_stores: an in-memory map and a Redis backend.
package kvstore
