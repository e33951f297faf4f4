// Package main provides the verifyshot CLI.
//
// verifyshot drives a headless browser through the report view, seeding the
// recently tested servers into local storage, and saves a screenshot after
// each interaction for visual review.
//
// Usage:
//
//	verifyshot run
//	verifyshot compare <run-a>:01-server-list <run-b>:01-server-list
//	verifyshot serve --port 8787
//
// See --help for all available options.
package main

func main() {
	Execute()
}
