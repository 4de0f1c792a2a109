package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/AriBhuiya/ferry/pkg/discovery"
)

func (a *app) discoverCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List ferry endpoints on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, _, err := backend(a.cfg.Discovery, a.logger)
			if err != nil {
				return err
			}
			budget := a.cfg.Discovery.BrowseInterval()
			services, err := a.browser(src).Browse(cmd.Context(), budget)
			if err != nil && len(services) == 0 {
				return err
			}
			renderServices(cmd.OutOrStdout(), services, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show every address instead of the best one")
	return cmd
}

// renderServices prints one row per service, sorted by instance name, with
// addresses ordered best first.
func renderServices(w io.Writer, services []discovery.Service, all bool) {
	if len(services) == 0 {
		fmt.Fprintln(w, "No ferry endpoints found.")
		return
	}
	rows := make([]discovery.Service, len(services))
	for i, s := range services {
		rows[i] = s.Clone()
		rows[i].SortAddrsByPreference()
	}
	slices.SortStableFunc(rows, func(x, y discovery.Service) int {
		return cmp.Compare(strings.ToLower(x.Instance), strings.ToLower(y.Instance))
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Host", "Address(es)", "Port"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	for _, s := range rows {
		table.Append([]string{s.Instance, s.Host, addrColumn(s, all), strconv.Itoa(int(s.Port))})
	}
	table.Render()
}

func addrColumn(s discovery.Service, all bool) string {
	if len(s.Addrs) == 0 {
		return "<no addr>"
	}
	if !all {
		return s.Addrs[0].Addr().String()
	}
	out := make([]string, len(s.Addrs))
	for i, ap := range s.Addrs {
		out[i] = ap.Addr().String()
	}
	return strings.Join(out, "\n")
}

// lookup finds a service by instance name, case-insensitively.
func lookup(services []discovery.Service, instance string) (discovery.Service, bool) {
	for _, s := range services {
		if strings.EqualFold(s.Instance, instance) {
			return s, true
		}
	}
	return discovery.Service{}, false
}
