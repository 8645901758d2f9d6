package main

import (
	"os"
	"testing"
)

// Relay and tunnel endpoint share this process in tests, so the shared salt
// filter would reject the endpoint's view of the relay's salt as a replay.
func TestMain(m *testing.M) {
	os.Setenv("SHADOWSOCKS_SF_CAPACITY", "-1")
	os.Exit(m.Run())
}
