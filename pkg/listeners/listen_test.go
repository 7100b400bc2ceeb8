package listeners

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"vpnshield/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestSplitAddr(t *testing.T) {
	network, addr := splitAddr("127.0.0.1:7400")
	require.Equal(t, "tcp", network)
	require.Equal(t, "127.0.0.1:7400", addr)

	network, addr = splitAddr("unix:/run/vpnshield.sock")
	require.Equal(t, "unix", network)
	require.Equal(t, "/run/vpnshield.sock", addr)
}

func TestListenTCP(t *testing.T) {
	l, err := Listen(config.ListenConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer l.Close()

	_, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok)
}

func TestListenUnixReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.sock")

	first, err := net.Listen("unix", path)
	require.NoError(t, err)
	// keep the file behind, as a crashed process would
	first.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, first.Close())

	l, err := Listen(config.ListenConfig{Addr: "unix:" + path})
	require.NoError(t, err)
	defer l.Close()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestListenUnixRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	_, err := Listen(config.ListenConfig{Addr: "unix:" + path})
	require.ErrorContains(t, err, "not a socket")
}

func TestLoadPemCertificateInvalid(t *testing.T) {
	_, err := loadPemCertificate([]byte("bad"), []byte("bad"))
	require.Error(t, err)
}
