// Package subprocess provides a wire to a host running as a child process.
//
// The host command line is taken from an exec:// address. Envelopes travel as
// line-delimited JSON over the child's stdin and stdout. Stderr is captured
// and reported in a ProcessError when the host exits unexpectedly.
package subprocess
