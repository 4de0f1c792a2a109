package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AriBhuiya/ferry/pkg/protocol"
	"github.com/AriBhuiya/ferry/pkg/serve"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Announce this endpoint and accept connections",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
	f := cmd.Flags()
	f.String("host", "127.0.0.1", "Bind address")
	f.Int("port", 3625, "Bind port (0 picks a free one)")
	f.String("name", "", "Instance name (default: generated)")
	f.String("dir", ".", "Session root directory")
	f.Bool("once", false, "Exit after the first session")
	_ = a.v.BindPFlag("serve.host", f.Lookup("host"))
	_ = a.v.BindPFlag("serve.port", f.Lookup("port"))
	_ = a.v.BindPFlag("serve.name", f.Lookup("name"))
	_ = a.v.BindPFlag("serve.dir", f.Lookup("dir"))
	_ = a.v.BindPFlag("serve.once", f.Lookup("once"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	sc := a.cfg.Serve
	kind, err := transport.ParseKind(a.cfg.Transport.Kind)
	if err != nil {
		return err
	}
	format, err := protocol.ParseFormat(a.cfg.Session.Codec)
	if err != nil {
		return err
	}
	_, reg, err := backend(a.cfg.Discovery, a.logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	return serve.Run(cmd.Context(), serve.Options{
		Name:      sc.Name,
		Host:      sc.Host,
		Port:      uint16(sc.Port),
		Dir:       sc.Dir,
		Once:      sc.Once,
		Kind:      kind,
		Transport: a.transportOptions(),
		Metrics:   a.transportMetrics,
		Announcer: a.announcer(reg),
		Format:    format,
		Logger:    a.logger,
		Ready: func(i serve.Info) {
			fmt.Fprintf(out, "Serving %s\n", i.Describe())
		},
	})
}
