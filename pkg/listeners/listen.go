package listeners

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"vpnshield/pkg/config"

	"golang.org/x/crypto/acme/autocert"
)

const unixPrefix = "unix:"

// Listen opens the listener described by cfg. Addresses prefixed with "unix:" bind a unix socket,
// replacing a stale socket file left by a previous run.
func Listen(cfg config.ListenConfig) (net.Listener, error) {
	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	network, addr := splitAddr(cfg.Addr)
	if network == "unix" {
		if err := removeStaleSocket(addr); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", cfg.Addr, err)
	}

	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	return listener, nil
}

func splitAddr(addr string) (network, address string) {
	if strings.HasPrefix(addr, unixPrefix) {
		return "unix", strings.TrimPrefix(addr, unixPrefix)
	}
	return "tcp", addr
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error checking socket %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("refusing to replace %s: not a socket", path)
	}
	return os.Remove(path)
}

func loadTLSConfig(cfg config.ListenConfig) (*tls.Config, error) {
	if cfg.TLS == nil {
		return nil, nil
	}

	if cfg.TLS.Acme != nil {
		ac := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(cfg.TLS.Acme.CacheDir),
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Acme.Domains...),
		}
		return ac.TLSConfig(), nil
	}

	if cfg.TLS.Static != nil && cfg.TLS.Static.Crt != "" && cfg.TLS.Static.Key != "" {
		crt, err := loadPemCertificate([]byte(cfg.TLS.Static.Crt), []byte(cfg.TLS.Static.Key))
		if err != nil {
			return nil, fmt.Errorf("error loading static certificate: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{*crt},
		}, nil
	}

	return nil, nil
}

func loadPemCertificate(crtPem, keyPem []byte) (*tls.Certificate, error) {
	crt, err := tls.X509KeyPair(crtPem, keyPem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse x509 key pair: %w", err)
	}
	if len(crt.Certificate) == 0 {
		return nil, fmt.Errorf("list of certificates is empty")
	}

	crt.Leaf, err = x509.ParseCertificate(crt.Certificate[0])
	if err != nil {
		return nil, err
	}

	return &crt, nil
}
