// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package certs generates and loads the certificates used to reach an
// extension proxy over TLS.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names used by Save.
const (
	CAFile   = "ca.crt"
	CertFile = "proxy.crt"
	KeyFile  = "proxy.key"
)

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a proxy certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

func newKey() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE").Wrapf(err, "generate key")
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE").Wrapf(err, "generate serial")
	}
	return key, serial, nil
}

// GenerateCA creates a self-signed root CA named "EscapePod CA <name>".
func GenerateCA(name string) (*CA, error) {
	key, serial, err := newKey()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"EscapePod"},
			CommonName:   "EscapePod CA " + name,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE").Wrapf(err, "create CA certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE").Wrapf(err, "parse CA certificate")
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a proxy certificate signed by ca. Each host is
// added as an IP or DNS subject alternative name; localhost and the
// loopback addresses are always included.
func GenerateServerCert(ca *CA, hosts ...string) (*ServerCert, error) {
	if ca == nil {
		return nil, oops.Code("CERT_GENERATE").Errorf("CA is required")
	}
	key, serial, err := newKey()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"EscapePod"},
			CommonName:   "escapepod-extension-proxy",
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE").Wrapf(err, "create proxy certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE").Wrapf(err, "parse proxy certificate")
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// Pool returns a certificate pool containing only ca.
func (ca *CA) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	return pool
}

// ClientTLS returns a client config that trusts only ca.
func (ca *CA) ClientTLS() *tls.Config {
	return &tls.Config{RootCAs: ca.Pool(), MinVersion: tls.VersionTLS12}
}

// ServerTLS returns a server config presenting c.
func (c *ServerCert) ServerTLS() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{c.Certificate.Raw},
			PrivateKey:  c.PrivateKey,
			Leaf:        c.Certificate,
		}},
		MinVersion: tls.VersionTLS12,
	}
}

// Save writes the CA certificate and, if given, the proxy certificate and
// key to dir. The CA key is never written.
func Save(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.With("dir", dir).Wrapf(err, "create certs directory")
	}
	if err := writePEM(filepath.Join(dir, CAFile), "CERTIFICATE", ca.Certificate.Raw); err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if err := writePEM(filepath.Join(dir, CertFile), "CERTIFICATE", server.Certificate.Raw); err != nil {
		return err
	}
	der, err := x509.MarshalECPrivateKey(server.PrivateKey)
	if err != nil {
		return oops.Wrapf(err, "marshal proxy key")
	}
	return writePEM(filepath.Join(dir, KeyFile), "EC PRIVATE KEY", der)
}

// LoadClientTLS reads a PEM CA bundle from path and returns a client config
// that trusts it.
func LoadClientTLS(path string) (*tls.Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code("TLS_CONFIG").With("path", path).Wrapf(err, "read CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, oops.Code("TLS_CONFIG").With("path", path).Errorf("no certificates found in CA bundle")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.With("path", path).Wrapf(err, "create %s", filepath.Base(path))
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return oops.With("path", path).Wrapf(err, "encode %s", filepath.Base(path))
	}
	if err := f.Close(); err != nil {
		return oops.With("path", path).Wrapf(err, "close %s", filepath.Base(path))
	}
	return nil
}
