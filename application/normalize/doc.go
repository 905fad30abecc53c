// Package normalize converts transport requests into the form handed to
// guests and guest output back into HTTP responses.
//
// Both executors receive the same routing facts. The spin executor sees them
// as spin-* headers, the WAGI executor as CGI meta-variables.
package normalize
