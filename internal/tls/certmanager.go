package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caddyserver/certmagic"

	"github.com/xao-fun/xao-go/internal/config"
)

// CertManager obtains and renews the API's certificate through ACME.
type CertManager struct {
	domain string
	logger *slog.Logger
	cfg    *certmagic.Config
}

// NewCertManager creates a CertManager for the configured domain. Outside
// production it talks to the Let's Encrypt staging CA.
func NewCertManager(sc config.ServerConfig, logger *slog.Logger) (*CertManager, error) {
	if sc.Domain == "" {
		return nil, errors.New("tls: domain is required")
	}

	certmagic.DefaultACME.Email = sc.ACMEEmail
	certmagic.DefaultACME.Agreed = true
	if !sc.Production {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}

	cfg := certmagic.NewDefault()
	cm := &CertManager{domain: strings.ToLower(sc.Domain), logger: logger, cfg: cfg}
	cfg.OnDemand = &certmagic.OnDemandConfig{DecisionFunc: cm.allowCert}
	return cm, nil
}

// allowCert refuses on-demand issuance for any name but the configured domain.
func (cm *CertManager) allowCert(_ context.Context, name string) error {
	if !strings.EqualFold(name, cm.domain) {
		return fmt.Errorf("unknown domain: %s", name)
	}
	return nil
}

// Serve manages the domain's certificate and serves srv over TLS on port 443.
// It returns http.ErrServerClosed after srv.Shutdown.
func (cm *CertManager) Serve(ctx context.Context, srv *http.Server) error {
	cm.logger.Info("starting TLS server", "domain", cm.domain)

	if err := cm.cfg.ManageSync(ctx, []string{cm.domain}); err != nil {
		return fmt.Errorf("manage domain: %w", err)
	}

	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", certmagic.HTTPSPort), cm.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("tls listen: %w", err)
	}

	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return srv.Serve(ln)
}
