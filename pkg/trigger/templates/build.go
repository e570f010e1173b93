// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"bytes"
	"text/template"

	"github.com/lib/pq"
)

// Config carries the per-install values every template in this package
// renders from. Modeled on pkg/backfill's TriggerConfig/executeTemplate
// pairing: one config struct, one FuncMap, reused across every template in
// the package.
type Config struct {
	FunctionName          string
	TriggerName           string
	TableName             string
	CatalogSchema         string
	QueueTable            string
	DefaultClassification string
}

// Build renders content (one of the package's template constants) against cfg.
func Build(name, content string, cfg Config) (string, error) {
	tmpl := template.Must(template.New(name).
		Funcs(template.FuncMap{
			"ql": pq.QuoteLiteral,
			"qi": pq.QuoteIdentifier,
		}).
		Parse(content))

	buf := bytes.Buffer{}
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}
