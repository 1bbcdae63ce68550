package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/opencadc/skahactl/pkg/skahactl/client"
	"github.com/opencadc/skahactl/pkg/skahactl/registry"
)

func WriteSessionTable(w io.Writer, sessions []client.Session) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tIMAGE\tSTARTED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Type, s.Status, s.Image, orDash(s.StartTime))
	}
	_ = tw.Flush()
}

func WriteSessionTableWide(w io.Writer, sessions []client.Session) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tIMAGE\tCORES\tRAM\tSTARTED\tEXPIRES\tCONNECT")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Name, s.Type, s.Status, s.Image,
			orDash(s.RequestedCPUCores), orDash(s.RequestedRAM),
			orDash(s.StartTime), orDash(s.ExpiryTime), orDash(s.ConnectURL))
	}
	_ = tw.Flush()
}

func WriteStatsTable(w io.Writer, stats *client.Stats) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SESSIONS\tDESKTOPS\tHEADLESS\tTOTAL\tCORES_USED\tCORES_FREE\tRAM_USED\tRAM_FREE")
	_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
		stats.Instances.Session, stats.Instances.Desktop, stats.Instances.Headless, stats.Instances.Total,
		stats.Cores.RequestedCPUCores, stats.Cores.CoresAvailable,
		orDash(stats.RAM.RequestedRAM), orDash(stats.RAM.RAMAvailable))
	_ = tw.Flush()
}

// WriteDiscoveryTable renders one discovery run grouped by registry, with a
// numbered index so the user can pick an endpoint interactively.
func WriteDiscoveryTable(w io.Writer, results *registry.Results) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Registry", "Name", "URL", "Status"})
	for i, entry := range results.Entries {
		name := entry.DisplayName
		if name == "" {
			name = entry.URI
		}
		status := "unreachable"
		if entry.Status != nil {
			status = fmt.Sprintf("%d", *entry.Status)
		}
		t.AppendRow(table.Row{i + 1, entry.Registry, name, entry.URL, status})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	_, _ = fmt.Fprintf(w, "found %d, checked %d, successful %d\n",
		results.Found, results.Checked, results.Successful)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
