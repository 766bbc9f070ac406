// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package certs loads the CA, client certificate/key, and CRL configured
// for mutual TLS, and builds the tls.Config the listener accepts
// connections with. It is the concrete implementation of the original
// source's certs.rs collaborator, fixed as out-of-scope by spec.md §1 but
// given a real body here since a complete repository needs one.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Bundle holds everything needed to build a server-side mTLS tls.Config.
type Bundle struct {
	RootCAs    *x509.CertPool
	ClientCert tls.Certificate
	CRL        *x509.RevocationList
}

// Load reads the CA, client cert/key, and CRL from the configured paths.
func Load(caCertPath, clientCertPath, clientKeyPath, revocationListPath string) (*Bundle, error) {
	caPEM, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA cert file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("couldn't parse any certificates from %s", caCertPath)
	}

	cert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client cert/key pair: %w", err)
	}

	crl, err := loadCRL(revocationListPath)
	if err != nil {
		return nil, fmt.Errorf("loading CRL: %w", err)
	}

	return &Bundle{RootCAs: pool, ClientCert: cert, CRL: crl}, nil
}

func loadCRL(path string) (*x509.RevocationList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	return x509.ParseRevocationList(raw)
}

// revoked reports whether any certificate in the verified chain is listed
// on the CRL.
func (b *Bundle) revoked(chains [][]*x509.Certificate) bool {
	if b.CRL == nil {
		return false
	}
	for _, chain := range chains {
		for _, cert := range chain {
			for _, entry := range b.CRL.RevokedCertificateEntries {
				if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
					return true
				}
			}
		}
	}
	return false
}

// ServerConfig builds the TLS 1.3-only, mutually-authenticated server
// config described by spec.md §6: the server accepts only peers
// presenting a certificate chain terminating at the configured CA and
// not present on the configured CRL.
func (b *Bundle) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{b.ClientCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    b.RootCAs,
		VerifyPeerCertificate: func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			if b.revoked(verifiedChains) {
				return fmt.Errorf("peer certificate is on the revocation list")
			}
			return nil
		},
	}
}
