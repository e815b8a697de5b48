package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// expandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}), which avoids colliding with literal $ characters
// in passwords and tokens. Missing variables expand to empty strings;
// validation catches required fields left empty. Content without template
// syntax (or with a malformed template) passes through untouched.
func expandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
