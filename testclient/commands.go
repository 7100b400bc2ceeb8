package testclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"vpnshield/pkg/session"
)

func PrintServers(ctx context.Context, c *Client, w io.Writer) error {
	servers, err := c.Servers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCATION\tCOUNTRY\tLOAD\tLATENCY")
	for _, ep := range servers {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%d%%\t%d ms\n", ep.ID, ep.Flag, ep.Location(), ep.Country, ep.Load, ep.LatencyMs)
	}
	return tw.Flush()
}

// Toggle flips the connection and, with wait, follows the stream until the session settles.
func Toggle(ctx context.Context, c *Client, endpointID string, wait bool) error {
	resp, err := c.Toggle(ctx, endpointID)
	if err != nil {
		return err
	}
	slog.Info("toggled", slog.String("state", resp.Session.State.String()), slog.String("location", resp.Location))

	if !wait {
		return nil
	}

	var failure error
	err = c.Watch(ctx, func(snap session.Snapshot) bool {
		if snap.Event != nil {
			failure = fmt.Errorf("%s: %s", snap.Event.Kind, snap.Event.Message)
			return false
		}
		switch snap.State {
		case session.Connected:
			slog.Info("connected", slog.String("address", snap.DisplayAddress()), slog.String("session_id", snap.SessionID))
			return false
		case session.Disconnected:
			slog.Info("disconnected")
			return false
		default:
			slog.Debug("waiting", slog.String("state", snap.State.String()))
			return true
		}
	})
	if err != nil {
		return err
	}
	return failure
}

// Watch prints one line per snapshot until ctx is done.
func Watch(ctx context.Context, c *Client, w io.Writer) error {
	return c.Watch(ctx, func(snap session.Snapshot) bool {
		fmt.Fprintln(w, FormatSnapshot(snap))
		return true
	})
}

func FormatSnapshot(snap session.Snapshot) string {
	location := "-"
	if snap.Endpoint != nil {
		location = snap.Endpoint.Location()
	}
	latest := snap.Latest()
	line := fmt.Sprintf("%-13s %-18s %-15s %s  down %6.1f Mbps  up %5.1f Mbps",
		snap.State, location, snap.DisplayAddress(), snap.Elapsed(), latest.DownloadMbps, latest.UploadMbps)
	if snap.Assessment != nil {
		line += "  " + snap.Assessment.Status.String()
	}
	if snap.Event != nil {
		line += "  ! " + snap.Event.Message
	}
	return line
}
