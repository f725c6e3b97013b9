// Package tls resolves the server certificate in order of preference:
// ACME autocert, operator-provided files, then a generated self-signed
// certificate for development.
package tls

import (
	"crypto/tls"
	"fmt"
	"os"

	"golang.org/x/crypto/acme/autocert"

	"fraud-detection-service/internal/util"
)

// Options selects the certificate sources the manager may use.
type Options struct {
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

// Manager serves certificates for the HTTPS listener.
type Manager struct {
	opts     Options
	autoCert *autocert.Manager
}

func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts}
	if opts.AutoCert {
		m.setupAutoCert()
	}
	return m
}

func (m *Manager) setupAutoCert() {
	if err := os.MkdirAll(m.opts.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert cache directory",
			util.String("dir", m.opts.AutoCertDir),
			util.ErrorField(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.opts.Domain),
		Cache:      autocert.DirCache(m.opts.AutoCertDir),
		Email:      m.opts.Email,
	}

	util.Info("AutoCert configured",
		util.String("domain", m.opts.Domain),
		util.String("cache_dir", m.opts.AutoCertDir))
}

// GetCertificate walks the source chain for one TLS handshake.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	if m.opts.CertFile != "" && m.opts.KeyFile != "" {
		if cert, err := tls.LoadX509KeyPair(m.opts.CertFile, m.opts.KeyFile); err == nil {
			return &cert, nil
		}
	}

	return m.selfSigned()
}

func (m *Manager) selfSigned() (*tls.Certificate, error) {
	hosts := []string{m.opts.Domain, "localhost", "127.0.0.1", "::1"}
	cert, err := generateSelfSigned(m.opts.AutoCertDir, hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
}

// Config builds the listener tls.Config around the certificate chain.
func (m *Manager) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// Autocert exposes the ACME manager for the port-80 challenge handler. Nil
// when autocert is not configured.
func (m *Manager) Autocert() *autocert.Manager {
	return m.autoCert
}
