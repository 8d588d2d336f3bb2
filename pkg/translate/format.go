package translate

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ha1tch/oesql/pkg/errors"
)

// Format is a plan output format.
type Format string

const (
	FormatSQL  Format = "sql"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSQL, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatSQL, nil
	}
	return "", errors.InvalidInput("format", "expected sql, json or yaml, got "+s).Err()
}

// WritePlans writes plans to w. SQL output terminates every statement with
// a semicolon and turns rewrite warnings into comments.
func WritePlans(w io.Writer, plans []Plan, format Format) error {
	var err error
	switch format {
	case FormatSQL, "":
		err = writeSQL(w, plans)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if plans == nil {
			plans = []Plan{}
		}
		err = enc.Encode(plans)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(plans); err == nil {
			err = enc.Close()
		}
	default:
		return errors.InvalidInput("format", string(format)).Err()
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeScriptWrite, "failed to write plans").
			WithField("format", string(format)).Err()
	}
	return nil
}

func writeSQL(w io.Writer, plans []Plan) error {
	bw := bufio.NewWriter(w)
	source := ""
	for i, p := range plans {
		if p.Source != source || i == 0 {
			if i > 0 {
				bw.WriteString("\n")
			}
			if p.Source != "" {
				bw.WriteString("-- source: " + p.Source + "\n")
			}
			source = p.Source
		}
		for _, warn := range p.Warnings {
			bw.WriteString("-- warning: " + warn + "\n")
		}
		for _, stmt := range p.Statements() {
			bw.WriteString(stmt)
			bw.WriteString(";\n")
		}
	}
	return bw.Flush()
}
