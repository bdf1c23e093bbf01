package queue

import "net/url"

// Job is a normalized URL waiting for a connection, with its link depth
// from the start URL.
type Job struct {
	URL   *url.URL
	Depth int
}

// String returns the job URL.
func (j Job) String() string {
	if j.URL == nil {
		return ""
	}
	return j.URL.String()
}
