package testsupport

import "go.uber.org/goleak"

// LeakOptions lists goroutines that dependencies start at init and never stop.
func LeakOptions() []goleak.Option {
	return []goleak.Option{
		// The genai client pulls in opencensus, whose stats worker runs for the process lifetime.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
}
