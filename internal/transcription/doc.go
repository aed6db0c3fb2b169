// Package transcription defines the output contract of the external
// speech-recognition engine and an HTTP client that submits finalized
// recordings to it. The engine itself (model loading, inference) is an
// external collaborator; this package never instructs it how to transcribe.
package transcription
