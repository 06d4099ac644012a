// SPDX-License-Identifier: MIT

// configgen emits parameter-file documentation from the parameter
// hierarchy: a fully commented default parameter file, or a markdown
// reference table.
//
// Usage:
//
//	configgen                         # default parameter file on stdout
//	configgen -format markdown        # reference table on stdout
//	configgen -instrument shane_kast_blue -o kast_blue.pars
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/par"
)

var version = "dev"

func main() {
	format := flag.String("format", "pars", "output format: pars or markdown")
	instName := flag.String("instrument", "", "emit the defaults of this spectrograph instead of the base defaults")
	output := flag.String("o", "", "output file (default stdout)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	set, err := buildSet(*instName)
	if err != nil {
		fail(err)
	}

	var out string
	switch *format {
	case "pars":
		lines := set.ConfigLines(par.EmitOptions{IncludeDescr: true})
		out = strings.Join(lines, "\n") + "\n"
	case "markdown":
		out = markdownReference(set)
	default:
		fail(fmt.Errorf("unknown format %q (want pars or markdown)", *format))
	}

	if *output == "" {
		fmt.Print(out)
		return
	}
	if err := renameio.WriteFile(*output, []byte(out), 0o644); err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *output)
}

func buildSet(instName string) (*par.Set, error) {
	if instName == "" {
		return par.ReduxSet(), nil
	}
	return instrument.Defaults(instName)
}

func markdownReference(set *par.Set) string {
	var b strings.Builder
	b.WriteString("# Parameter reference\n")
	writeSection(&b, set, "")
	return b.String()
}

func writeSection(b *strings.Builder, set *par.Set, prefix string) {
	var scalars []*par.Def
	var children []*par.Def
	for _, key := range set.Keys() {
		d, _ := set.Lookup(key)
		if d.Kind == par.KindSet {
			children = append(children, d)
		} else {
			scalars = append(scalars, d)
		}
	}

	if len(scalars) > 0 {
		title := prefix
		if title == "" {
			title = "top level"
		}
		fmt.Fprintf(b, "\n## %s\n\n", title)
		b.WriteString("| Key | Type | Default | Options | Description |\n")
		b.WriteString("|-----|------|---------|---------|-------------|\n")
		for _, d := range scalars {
			options := strings.Join(d.Options, ", ")
			def := ""
			if d.Default != nil {
				def = "`" + par.FormatValue(d.Default) + "`"
			}
			fmt.Fprintf(b, "| `%s` | %s | %s | %s | %s |\n",
				d.Key, d.Kind, def, options, escapeCell(d.Descr))
		}
	}

	for _, d := range children {
		child := d.Key
		if prefix != "" {
			child = prefix + "." + d.Key
		}
		writeSection(b, d.Child, child)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
