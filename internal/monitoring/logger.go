// Package monitoring holds the pluggable diagnostic logger shared by the
// analytics packages, so callers can route pipeline and server output to
// their own sink without threading a logger through every constructor.
package monitoring

import "log"

// Logf emits a diagnostic line. It is log.Printf until redirected with
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects Logf. A nil f silences logging entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
