package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// certConfig names the sources a root CA pool can be built from. CAFile
// takes precedence over CACertificate, which takes precedence over CAPath.
type certConfig struct {
	CAFile        string
	CACertificate []byte
	CAPath        string
}

// configureTLS installs a root CA pool built from cfg onto t. A config
// with no CA source leaves the system pool in place.
func configureTLS(t *tls.Config, cfg *certConfig) error {
	if t == nil {
		return nil
	}
	pool, err := loadCACerts(cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		t.RootCAs = pool
	}
	return nil
}

func loadCACerts(cfg *certConfig) (*x509.CertPool, error) {
	if cfg == nil {
		cfg = &certConfig{}
	}
	switch {
	case cfg.CAFile != "":
		return loadCAFile(cfg.CAFile)
	case len(cfg.CACertificate) != 0:
		return appendCACertificate(cfg.CACertificate)
	case cfg.CAPath != "":
		return loadCAPath(cfg.CAPath)
	}
	return nil, nil
}

func loadCAFile(caFile string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("error reading CA file %q: %w", caFile, err)
	}

	if ok := pool.AppendCertsFromPEM(pem); !ok {
		return nil, fmt.Errorf("error loading CA file %q: no certificates parsed", caFile)
	}

	return pool, nil
}

func appendCACertificate(ca []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	if ok := pool.AppendCertsFromPEM(ca); !ok {
		return nil, fmt.Errorf("error loading CA certificate: no certificates parsed")
	}

	return pool, nil
}

func loadCAPath(caPath string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading file %q: %w", path, err)
		}

		if ok := pool.AppendCertsFromPEM(pem); !ok {
			return fmt.Errorf("error loading file %q: no certificates parsed", path)
		}

		return nil
	}

	if err := filepath.Walk(caPath, walkFn); err != nil {
		return nil, err
	}

	return pool, nil
}
