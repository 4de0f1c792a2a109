package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/core/netstack"
	"github.com/AriBhuiya/ferry/pkg/discovery"
	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/names"
	"github.com/AriBhuiya/ferry/pkg/protocol"
	"github.com/AriBhuiya/ferry/pkg/protocol/codec"
	"github.com/AriBhuiya/ferry/pkg/session"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// target is a resolved endpoint to connect to.
type target struct {
	Addr        string
	Kind        transport.Kind
	Fingerprint string
}

func (a *app) pingCmd() *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "ping <instance|host:port>",
		Short: "Connect to an endpoint and exchange greetings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := transport.ParseKind(a.cfg.Transport.Kind)
			if err != nil {
				return err
			}
			tgt, err := a.resolve(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			return a.ping(cmd.Context(), cmd.OutOrStdout(), tgt, attempts)
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 3, "Connection attempts before giving up")
	return cmd
}

// resolve treats arg as a literal address when it parses as host:port (or
// when the transport is winpipe), and as an instance name otherwise.
func (a *app) resolve(ctx context.Context, arg string, fallback transport.Kind) (target, error) {
	if t, ok := literalTarget(arg, fallback); ok {
		return t, nil
	}
	src, _, err := backend(a.cfg.Discovery, a.logger)
	if err != nil {
		return target{}, err
	}
	services, err := a.browser(src).Browse(ctx, a.cfg.Discovery.BrowseInterval())
	if err != nil {
		return target{}, err
	}
	s, ok := lookup(services, arg)
	if !ok {
		return target{}, errs.Errorf(errs.KindDiscovery, "ping.resolve", "no endpoint named %q", arg)
	}
	return targetFromService(s, fallback)
}

func literalTarget(arg string, fallback transport.Kind) (target, bool) {
	if fallback == transport.KindWinPipe {
		return target{Addr: arg, Kind: fallback}, true
	}
	_, port, err := net.SplitHostPort(arg)
	if err != nil {
		return target{}, false
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return target{}, false
	}
	return target{Addr: arg, Kind: fallback}, true
}

// targetFromService picks the best address and the advertised transport and
// fingerprint.
func targetFromService(s discovery.Service, fallback transport.Kind) (target, error) {
	best, ok := s.BestAddr()
	if !ok {
		return target{}, errs.Errorf(errs.KindDiscovery, "ping.resolve", "%s has no address", s.Instance)
	}
	t := target{Addr: best.String(), Kind: fallback}
	if proto, ok := s.Attr(discovery.AttrProto); ok {
		if k, err := transport.ParseKind(proto); err == nil {
			t.Kind = k
		}
	}
	t.Fingerprint, _ = s.Attr(discovery.AttrFingerprint)
	return t, nil
}

func (a *app) ping(ctx context.Context, out io.Writer, tgt target, attempts int) error {
	policy, err := a.policy(tgt.Fingerprint)
	if err != nil {
		return err
	}
	client, err := netstack.NewClient(netstack.ClientSpec{
		Kind:    tgt.Kind,
		Target:  tgt.Addr,
		Policy:  policy,
		Options: a.transportOptions(),
		Metrics: a.transportMetrics,
	})
	if err != nil {
		return err
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	start := time.Now()
	tr, err := netstack.Connect(ctx, client, netstack.Backoff{
		Initial:  200 * time.Millisecond,
		Max:      2 * time.Second,
		Jitter:   100 * time.Millisecond,
		Attempts: attempts,
	}, a.logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	format, err := protocol.ParseFormat(a.cfg.Session.Codec)
	if err != nil {
		return err
	}
	reg, err := codec.NewRegistry()
	if err != nil {
		return err
	}
	g := session.NewGreeter(names.Random(), format, reg)
	g.Logger = a.logger
	w, err := g.Dial(ctx, tr)
	if err != nil {
		return err
	}
	rtt := time.Since(start)
	a.logger.Debug("greeting complete", zap.String("peer", w.Name), zap.String("session", w.Session))
	fmt.Fprintf(out, "Connected to %s at %s over %s (session %s) in %s\n",
		w.Name, tgt.Addr, tgt.Kind, w.Session, rtt.Round(time.Millisecond))
	return nil
}
