package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/prefs"
)

var (
	playingColor  = color.New(color.FgGreen, color.Bold)
	selectedColor = color.New(color.FgCyan)
	dimColor      = color.New(color.Faint)
)

func validateFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
}

// deviceRow is one line of the speaker list.
type deviceRow struct {
	device.Device
	Selected bool          `json:"selected"`
	Playing  bool          `json:"playing"`
	Config   device.Config `json:"config"`
}

func deviceRows(devices []device.Device, playing *device.Device, p prefs.Prefs) []deviceRow {
	rows := make([]deviceRow, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, deviceRow{
			Device:   d,
			Selected: p.IsSelected(d.Address),
			Playing:  playing != nil && playing.Address == d.Address,
			Config:   p.ConfigFor(d.Address),
		})
	}
	return rows
}

func displayDevices(w io.Writer, rows []deviceRow, format string) error {
	if format == "json" {
		return displayJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("No speakers discovered"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tSTATE\tVOLUME\tPROFILE\tCHANNEL\tTEAM-UP")
	fmt.Fprintln(tw, strings.Repeat("-", 80))

	for _, r := range rows {
		name := r.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		var state []string
		if r.Selected {
			state = append(state, selectedColor.Sprint("selected"))
		}
		if r.Playing {
			state = append(state, playingColor.Sprint("playing"))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			name, r.Address, strings.Join(state, ","), int(r.Config.Volume*100+0.5),
			r.Config.SoundProfile, r.Config.Channel, r.Config.TeamUpMode)
	}
	return tw.Flush()
}

// displayPrefs lists every stored config, whether or not the speaker is around.
func displayPrefs(w io.Writer, p prefs.Prefs, format string) error {
	if format == "json" {
		return displayJSON(w, p)
	}
	if len(p.Configs) == 0 && len(p.Selected) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("No stored preferences"))
		return nil
	}

	addresses := make([]string, 0, len(p.Configs))
	for a := range p.Configs {
		addresses = append(addresses, a)
	}
	for _, a := range p.Selected {
		if _, ok := p.Configs[a]; !ok {
			addresses = append(addresses, a)
		}
	}
	sort.Strings(addresses)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSELECTED\tVOLUME\tPROFILE\tCHANNEL\tTEAM-UP\tPIN")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, a := range addresses {
		c := p.ConfigFor(a)
		selected := ""
		if p.IsSelected(a) {
			selected = selectedColor.Sprint("yes")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\t%s\t%s\n",
			a, selected, int(c.Volume*100+0.5), c.SoundProfile, c.Channel, c.TeamUpMode, c.Pin)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Selected) > 1 {
		m := p.SelectedConfig()
		fmt.Fprintf(w, "\nSelection (%d speakers): volume %d%%, %s, %s, %s\n",
			len(p.Selected), int(m.Volume*100+0.5), m.SoundProfile, m.Channel, m.TeamUpMode)
	}
	return nil
}

func displayJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
