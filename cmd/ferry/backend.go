package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/config"
	"github.com/AriBhuiya/ferry/pkg/discovery"
	"github.com/AriBhuiya/ferry/pkg/discovery/hashimdns"
	"github.com/AriBhuiya/ferry/pkg/discovery/zeroconf"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// backend returns the browse source and registrar for the configured mDNS
// library.
func backend(c config.DiscoveryConfig, log *zap.Logger) (discovery.Source, discovery.Registrar, error) {
	switch c.Backend {
	case "", "zeroconf":
		src := zeroconf.NewSource()
		src.Logger = log
		return src, zeroconf.NewRegistrar(), nil
	case "hashicorp":
		src := hashimdns.NewSource()
		src.Logger = log
		return src, hashimdns.NewRegistrar(), nil
	default:
		return nil, nil, fmt.Errorf("unknown discovery backend %q", c.Backend)
	}
}

func (a *app) browser(src discovery.Source) *discovery.Browser {
	b := discovery.NewBrowser(src)
	b.ServiceType = a.cfg.Discovery.ServiceType
	b.Domain = a.cfg.Discovery.Domain
	b.PollInterval = a.cfg.Discovery.PollInterval()
	b.Logger = a.logger
	b.Metrics = a.discoveryMetrics
	return b
}

func (a *app) announcer(reg discovery.Registrar) *discovery.Announcer {
	an := discovery.NewAnnouncer(reg)
	an.ServiceType = a.cfg.Discovery.ServiceType
	an.Domain = a.cfg.Discovery.Domain
	an.Logger = a.logger
	an.Metrics = a.discoveryMetrics
	return an
}

func (a *app) transportOptions() transport.Options {
	o := transport.OptionsFrom(a.cfg.Transport)
	o.Logger = a.logger
	return o
}

// policy builds the client verification policy; fp from discovery is used
// when no fingerprint is configured.
func (a *app) policy(discoveredFP string) (identity.Policy, error) {
	mode, err := identity.ParseVerifyMode(a.cfg.Transport.Verify)
	if err != nil {
		return identity.Policy{}, err
	}
	fp := a.cfg.Transport.Fingerprint
	if fp == "" {
		fp = discoveredFP
	}
	return identity.Policy{Mode: mode, Fingerprint: identity.NormalizeFingerprint(fp)}, nil
}
