// Package config holds the settings of a verification run: the app under
// test, the seeded fixture, the readiness gate, the scenario steps and where
// artifacts go. Values come from defaults, an optional verifyshot.yaml and
// CLI flags, in that order.
package config
