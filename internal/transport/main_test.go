package transport

import (
	"os"
	"testing"
)

// Both ends of every AEAD carrier live in this process, so the shared salt
// filter would reject the server side as a replay of the client's salt.
func TestMain(m *testing.M) {
	os.Setenv("SHADOWSOCKS_SF_CAPACITY", "-1")
	os.Exit(m.Run())
}
