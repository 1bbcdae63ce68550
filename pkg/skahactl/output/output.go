package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/opencadc/skahactl/pkg/skahactl/client"
	"github.com/opencadc/skahactl/pkg/skahactl/registry"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatWide  Format = "wide"
)

// WriteObject serializes obj as json or yaml. Table rendering is
// type-specific; use the Write* dispatchers below for that.
func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// WriteSessions renders a session list in any supported format.
func WriteSessions(w io.Writer, format Format, sessions []client.Session) error {
	switch format {
	case FormatTable:
		WriteSessionTable(w, sessions)
		return nil
	case FormatWide:
		WriteSessionTableWide(w, sessions)
		return nil
	default:
		return WriteObject(w, format, sessions)
	}
}

// WriteStats renders the cluster usage summary.
func WriteStats(w io.Writer, format Format, stats *client.Stats) error {
	switch format {
	case FormatTable, FormatWide:
		WriteStatsTable(w, stats)
		return nil
	default:
		return WriteObject(w, format, stats)
	}
}

// WriteDiscovery renders one discovery run.
func WriteDiscovery(w io.Writer, format Format, results *registry.Results) error {
	switch format {
	case FormatTable, FormatWide:
		WriteDiscoveryTable(w, results)
		return nil
	default:
		return WriteObject(w, format, results)
	}
}
