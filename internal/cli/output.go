package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"covid-parser/internal/service"
	"covid-parser/pkg/source"
)

// Format is the rendering used for command output.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTable:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, yaml or table)", s)
}

type printer struct {
	w      io.Writer
	format Format
}

// print writes v as JSON or YAML, or calls fill to build a table.
func (p printer) print(v interface{}, fill func(t table.Writer)) error {
	switch p.format {
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		fill(t)
		_, err := fmt.Fprintln(p.w, t.Render())
		return err
	default:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (p printer) envelope(env service.Envelope) error {
	return p.print(env, func(t table.Writer) {
		t.AppendHeader(table.Row{"Date", "Value"})
		for _, row := range envelopeRows(env) {
			t.AppendRow(row)
		}
	})
}

func (p printer) summary(rows []service.LocationResult) error {
	return p.print(rows, func(t table.Writer) {
		t.AppendHeader(table.Row{"Code", "Name", "Status", "Latest", "Previous"})
		for _, r := range rows {
			cells := envelopeRows(r.Result)
			row := table.Row{r.Code, r.Name, r.Result.Status, "", ""}
			for i := 0; i < len(cells) && i < 2; i++ {
				row[3+i] = cells[i][1]
			}
			if !r.Result.OK() {
				row[3] = r.Result.Content
			}
			t.AppendRow(row)
		}
	})
}

type locationsView struct {
	Locations []locationView    `json:"locations" yaml:"locations"`
	Aliases   map[string]string `json:"aliases" yaml:"aliases"`
}

type locationView struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
}

func (p printer) locations(reg *source.Registry) error {
	view := locationsView{Aliases: make(map[string]string)}
	for _, d := range reg.Descriptors() {
		view.Locations = append(view.Locations, locationView{Code: d.Code, Name: d.Name, Kind: d.Kind.String()})
	}
	aliases := reg.Aliases()
	for _, a := range aliases {
		view.Aliases[a[0]] = a[1]
	}

	return p.print(view, func(t table.Writer) {
		t.AppendHeader(table.Row{"Code", "Name", "Kind"})
		for _, l := range view.Locations {
			t.AppendRow(table.Row{l.Code, l.Name, l.Kind})
		}
		t.AppendSeparator()
		for _, a := range aliases {
			t.AppendRow(table.Row{a[1], a[0], "alias"})
		}
	})
}

// envelopeRows flattens envelope content into [date, value] rows. Items
// without a date are labelled by position, and a Total becomes one row.
func envelopeRows(env service.Envelope) []table.Row {
	if !env.OK() {
		return []table.Row{{"error", env.Content}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(env.Content), &items); err != nil {
		return []table.Row{{"total", env.Content}}
	}

	rows := make([]table.Row, 0, len(items))
	for i, raw := range items {
		var pair []string
		if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
			rows = append(rows, table.Row{pair[0], pair[1]})
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}
		rows = append(rows, table.Row{fmt.Sprintf("#%d", i+1), value})
	}
	return rows
}
