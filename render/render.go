// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package render prints inspection reports.
package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/Azure/azure-netns-inspect/configuration"
	"github.com/Azure/azure-netns-inspect/inspect"
	"github.com/Azure/azure-netns-inspect/netlink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var header = []string{"Device Name", "If-Index", "If-Type", "Veth-Peer-Index", "Container"}

// ErrUnknownFormat is returned for an output format other than table or json.
var ErrUnknownFormat = errors.New("unknown output format")

// Printer writes reports to out and diagnostics to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	color  bool
	bold   *color.Color
	warn   *color.Color
}

// NewPrinter returns a Printer. Colors are only emitted when useColor is set.
func NewPrinter(out, errOut io.Writer, useColor bool) *Printer {
	p := &Printer{
		out:    out,
		errOut: errOut,
		color:  useColor,
		bold:   color.New(color.Bold),
		warn:   color.New(color.FgYellow),
	}
	if useColor {
		p.bold.EnableColor()
		p.warn.EnableColor()
	} else {
		p.bold.DisableColor()
		p.warn.DisableColor()
	}
	return p
}

// Print writes r in format followed by its diagnostics.
func (p *Printer) Print(r *inspect.Report, format string) error {
	var err error
	switch format {
	case configuration.OutputTable, "":
		err = p.Tables(r)
	case configuration.OutputJSON:
		err = p.JSON(r)
	default:
		return errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return err
	}

	p.Diagnostics(r.Diagnostics)
	return nil
}

// Tables writes one table per namespace.
func (p *Printer) Tables(r *inspect.Report) error {
	for i := range r.Namespaces {
		if err := p.table(&r.Namespaces[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) table(links *netlink.Links) error {
	if _, err := p.bold.Fprintf(p.out, "Net-Namespace Name: `%s`\n", links.Namespace); err != nil {
		return errors.Wrap(err, "failed to write namespace header")
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	if p.color {
		headerColors := make([]tablewriter.Colors, len(header))
		for i := range headerColors {
			headerColors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgGreenColor}
		}
		table.SetHeaderColor(headerColors...)
	}

	for i := range links.Devices {
		d := &links.Devices[i]
		table.Append([]string{d.Name, d.IndexString(), d.KindString(), d.PeerString(), d.ContainerString()})
	}
	table.Render()

	_, err := fmt.Fprintln(p.out)
	return errors.Wrap(err, "failed to write table")
}

type diagnostic struct {
	Namespace     string `json:"namespace"`
	Error         string `json:"error"`
	RestoreFailed bool   `json:"restoreFailed,omitempty"`
}

type document struct {
	Namespaces  []netlink.Links `json:"namespaces"`
	Diagnostics []diagnostic    `json:"diagnostics,omitempty"`
}

// JSON writes the report as a single JSON document.
func (p *Printer) JSON(r *inspect.Report) error {
	doc := document{Namespaces: r.Namespaces}
	if doc.Namespaces == nil {
		doc.Namespaces = []netlink.Links{}
	}
	for _, d := range r.Diagnostics {
		doc.Diagnostics = append(doc.Diagnostics, diagnostic{
			Namespace:     d.Namespace,
			Error:         d.Err.Error(),
			RestoreFailed: d.RestoreFailed(),
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	b = append(b, '\n')
	_, err = p.out.Write(b)
	return errors.Wrap(err, "failed to write report")
}

// Diagnostics lists skipped namespaces and restore failures on errOut.
func (p *Printer) Diagnostics(diags []inspect.Diagnostic) {
	for _, d := range diags {
		if d.RestoreFailed() {
			p.warn.Fprintf(p.errOut, "warning: %s (thread namespace unverified)\n", d)
			continue
		}
		p.warn.Fprintf(p.errOut, "skipped: %s\n", d)
	}
}
