// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serverconfig

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadKeyPair loads the first PKCS#8 private key found in keyPath and the
// full certificate chain found in certPath, and builds a tls.Certificate
// from them (spec §4.5 step 2). Both files are plain PEM.
func LoadKeyPair(keyPath, certPath string) (tls.Certificate, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("serverconfig: reading private key %q: %w", keyPath, err)
	}
	key, err := firstPKCS8Key(keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("serverconfig: loading private key %q: %w", keyPath, err)
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("serverconfig: reading certificate chain %q: %w", certPath, err)
	}
	chain, err := allCertificates(certPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("serverconfig: loading certificate chain %q: %w", certPath, err)
	}
	if len(chain) == 0 {
		return tls.Certificate{}, fmt.Errorf("serverconfig: no certificates found in %q", certPath)
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
	}, nil
}

func firstPKCS8Key(pemBytes []byte) (any, error) {
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("no PKCS#8 private key found")
		}
		if block.Type != "PRIVATE KEY" {
			continue
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#8 key: %w", err)
		}
		return key, nil
	}
}

func allCertificates(pemBytes []byte) ([][]byte, error) {
	var certs [][]byte
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		certs = append(certs, block.Bytes)
	}
	return certs, nil
}

// alpnProtocols is the fixed ALPN preference order spec §4.5 step 5
// requires: h2 before http/1.1.
var alpnProtocols = []string{"h2", "http/1.1"}

// NewTLSConfig builds the shared TLS acceptor configuration: TLS 1.2 and
// 1.3 only, ALPN h2/http/1.1, no client certificate requested.
func NewTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		NextProtos:   alpnProtocols,
		ClientAuth:   tls.NoClientCert,
	}
}
