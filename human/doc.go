// Package human parks workflow branches at human gates. A branch that
// reaches a human node registers a pending input request and blocks until a
// caller resumes it, its timeout policy fires, or the run is cancelled.
package human
