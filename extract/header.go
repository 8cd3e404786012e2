package extract

import (
	"bytes"
	"strings"
)

var crlf = []byte("\r\n")

// Header is a parsed part header block. Keys are lower-cased; repeated keys keep
// every value in order.
type Header map[string][]string

// Get returns the first value for key, or "".
func (h Header) Get(key string) string {
	if v := h[strings.ToLower(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// parseHeader tokenizes a raw header block: lines are split on CRLF and each
// non-empty line must be "key: value". Lines without a colon are dropped.
func parseHeader(block []byte) Header {
	h := make(Header)
	for _, line := range bytes.Split(block, crlf) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		i := bytes.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(string(line[:i])))
		if key == "" {
			continue
		}
		h[key] = append(h[key], strings.TrimSpace(string(line[i+1:])))
	}
	return h
}

// Param is one Content-Disposition parameter. Quoted is false when the value
// was bare or its opening quote was never closed.
type Param struct {
	Value  string
	Quoted bool
}

// Disposition is a parsed Content-Disposition value such as
// `form-data; name="file"; filename="photo.jpg"`.
type Disposition struct {
	Type   string
	Params map[string]Param
}

// Filename returns the quoted filename parameter. ok is false when the
// parameter is absent, unquoted or empty.
func (d Disposition) Filename() (string, bool) {
	p, found := d.Params["filename"]
	if !found || !p.Quoted || p.Value == "" {
		return "", false
	}
	return p.Value, true
}

func parseDisposition(value string) Disposition {
	tokens := splitParams(value)
	d := Disposition{Params: make(map[string]Param)}
	if len(tokens) == 0 {
		return d
	}
	d.Type = strings.ToLower(strings.TrimSpace(tokens[0]))
	for _, tok := range tokens[1:] {
		eq := strings.IndexByte(tok, '=')
		if eq <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(tok[:eq]))
		if _, dup := d.Params[key]; dup || key == "" {
			continue
		}
		d.Params[key] = parseParamValue(strings.TrimSpace(tok[eq+1:]))
	}
	return d
}

// parseParamValue reads a quoted-string up to the next quote. Backslash escapes
// are not interpreted; browsers percent-encode quotes in filenames.
func parseParamValue(raw string) Param {
	if !strings.HasPrefix(raw, `"`) {
		return Param{Value: raw}
	}
	end := strings.IndexByte(raw[1:], '"')
	if end < 0 {
		return Param{Value: raw[1:]}
	}
	return Param{Value: raw[1 : end+1], Quoted: true}
}

// splitParams splits on ';' outside double quotes.
func splitParams(s string) []string {
	var (
		out     []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
