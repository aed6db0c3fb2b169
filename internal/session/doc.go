// Package session coordinates the annotation workflow. The coordinator
// tracks whether the user is drafting a new annotation from live engine
// output or viewing a saved record, and routes saves to record creation
// or in-place update accordingly.
package session
