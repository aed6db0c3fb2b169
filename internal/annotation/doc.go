// Package annotation defines the annotation record entity: a transcript
// snapshot combined with user-supplied contact metadata.
package annotation
