// Package commands implements the cartrustctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatPeers renders a slice of associated peers in the requested format.
func formatPeers(peers []peer, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatPeersJSON(peers)
	case formatTable:
		return formatPeersTable(peers)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatPeer renders a single associated peer in the requested format.
func formatPeer(p peer, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatPeerJSON(p)
	case formatTable:
		return formatPeerDetail(p), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatPeersTable(peers []peer) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE-ID\tNAME\tMAC-ADDRESS\tUSER-RENAMED")

	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n",
			p.DeviceID,
			orNA(p.Name),
			orNA(p.MACAddress),
			p.IsUserRenamed,
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatPeerDetail(p peer) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Device ID:\t%s\n", p.DeviceID)
	fmt.Fprintf(w, "Name:\t%s\n", orNA(p.Name))
	fmt.Fprintf(w, "MAC Address:\t%s\n", orNA(p.MACAddress))
	fmt.Fprintf(w, "User Renamed:\t%t\n", p.IsUserRenamed)

	_ = w.Flush()

	return buf.String()
}

func orNA(s string) string {
	if s == "" {
		return valueNA
	}
	return s
}

// --- JSON formatters ---

func formatPeersJSON(peers []peer) (string, error) {
	data, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal peers to JSON: %w", err)
	}

	return string(data), nil
}

func formatPeerJSON(p peer) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal peer to JSON: %w", err)
	}

	return string(data), nil
}
