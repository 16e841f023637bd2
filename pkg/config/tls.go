package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/pg-sharding/pglink/pkg/pglog"
)

// https://www.postgresql.org/docs/current/libpq-ssl.html#LIBPQ-SSL-PROTECTION
type TLSConfig struct {
	SslMode      string `toml:"sslmode"`
	KeyFile      string `toml:"key_file"`
	CertFile     string `toml:"cert_file"`
	RootCertFile string `toml:"root_cert_file"`
}

// Init builds the tls.Config for host, or nil when TLS is disabled.
// Verification semantics follow libpq's sslmode levels.
func (c *TLSConfig) Init(host string) (*tls.Config, error) {
	if c == nil || c.SslMode == "" {
		c = &TLSConfig{SslMode: "disable"}
	}

	if (c.CertFile != "" && c.KeyFile == "") || (c.CertFile == "" && c.KeyFile != "") {
		return nil, fmt.Errorf(`both "cert_file" and "key_file" are required`)
	}

	tlsConfig := &tls.Config{}

	switch c.SslMode {
	case "disable":
		return nil, nil
	case "allow", "prefer":
		tlsConfig.InsecureSkipVerify = true
	case "require":
		// With a root CA configured, require behaves like verify-ca.
		//
		// See https://www.postgresql.org/docs/12/libpq-ssl.html
		if c.RootCertFile != "" {
			goto nextCase
		}
		tlsConfig.InsecureSkipVerify = true
		break
	nextCase:
		fallthrough
	case "verify-ca":
		// Don't perform the default certificate verification because it
		// will verify the hostname. Instead, verify the server's
		// certificate chain ourselves in VerifyPeerCertificate and
		// ignore the server name. This emulates libpq's verify-ca
		// behavior.
		//
		// See https://github.com/golang/go/issues/21971#issuecomment-332693931
		// and https://pkg.go.dev/crypto/tls?tab=doc#example-Config-VerifyPeerCertificate
		// for more info.
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyPeerCertificate = func(certificates [][]byte, _ [][]*x509.Certificate) error {
			certs := make([]*x509.Certificate, len(certificates))
			for i, asn1Data := range certificates {
				cert, err := x509.ParseCertificate(asn1Data)
				if err != nil {
					return fmt.Errorf("failed to parse certificate from server: %s", err.Error())
				}
				certs[i] = cert
			}

			// Leave DNSName empty to skip hostname verification.
			opts := x509.VerifyOptions{
				Roots:         tlsConfig.RootCAs,
				Intermediates: x509.NewCertPool(),
			}
			// Skip the first cert because it's the leaf. All others
			// are intermediates.
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := certs[0].Verify(opts)
			return err
		}
	case "verify-full":
		tlsConfig.ServerName = host
	default:
		return nil, fmt.Errorf("sslmode is invalid")
	}

	if c.RootCertFile != "" {
		caCertPool := x509.NewCertPool()

		caCert, err := os.ReadFile(c.RootCertFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read CA file: %w", err)
		}

		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("unable to add CA to cert pool")
		}

		tlsConfig.RootCAs = caCertPool
	}

	if c.CertFile != "" && c.KeyFile != "" {
		pglog.Zero.Debug().
			Str("cert_file", c.CertFile).
			Str("key_file", c.KeyFile).
			Msg("loading tls")
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to load X509 key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
