package instance

import "os"

// ID returns a stable identifier for this worker process. It prefers the
// RAFFLEBOX_WORKER_ID environment variable so orchestrators can pin names,
// and falls back to the hostname, which is unique per pod.
func ID() string {
	if id := os.Getenv("RAFFLEBOX_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "recompute-worker-0"
}
