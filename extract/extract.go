// Package extract pulls the uploaded file out of a raw multipart/form-data body.
//
// It works on the bytes the transport delivered rather than on an http.Request,
// so the same code serves the HTTP server and the API Gateway entry point.
// Extraction is pure: no I/O, no shared state, and malformed input produces a
// typed failure instead of a panic.
package extract

import (
	"bytes"
	"strings"

	"bwupload/failure"
)

var headerEnd = []byte("\r\n\r\n")

// Policy decides what happens when a body carries more than one file part.
type Policy int

const (
	// FirstValidFile returns the first qualifying part and ignores the rest.
	FirstValidFile Policy = iota
	// RejectMultiple fails with failure.MultipleFiles when a second qualifying
	// part follows the first.
	RejectMultiple
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to
// FirstValidFile and report ok=false.
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "first-valid-file":
		return FirstValidFile, true
	case "reject-multiple", "reject":
		return RejectMultiple, true
	default:
		return FirstValidFile, false
	}
}

func (p Policy) String() string {
	if p == RejectMultiple {
		return "reject-multiple"
	}
	return "first-valid-file"
}

// File is the extracted upload. Filename is the client-supplied value exactly
// as sent; callers must sanitize it before using it as a storage key.
type File struct {
	FieldName   string
	Filename    string
	ContentType string
	Content     []byte
}

// Segment is one raw piece of the body between boundary markers.
type Segment struct {
	Headers []byte
	Body    []byte
}

type Extractor struct {
	Policy Policy
}

// Extract runs the default FirstValidFile extractor.
func Extract(body []byte, contentType string) (*File, error) {
	return Extractor{}.Extract(body, contentType)
}

func (x Extractor) Extract(body []byte, contentType string) (*File, error) {
	if !strings.Contains(strings.ToLower(contentType), "multipart/form-data") {
		return nil, failure.New(failure.UnsupportedContentType)
	}
	boundary, ok := Boundary(contentType)
	if !ok {
		return nil, failure.New(failure.MissingBoundary)
	}

	var found *File
	for _, seg := range Split(body, boundary) {
		f, ok := fileFrom(seg)
		if !ok {
			continue
		}
		if found == nil {
			found = f
			if x.Policy == FirstValidFile {
				return found, nil
			}
			continue
		}
		return nil, failure.New(failure.MultipleFiles)
	}
	if found == nil {
		return nil, failure.New(failure.NoFileFound)
	}
	return found, nil
}

// Boundary returns the boundary parameter of a Content-Type value, read up to the
// next ';' or the end of the string. Surrounding whitespace and quotes are removed.
func Boundary(contentType string) (string, bool) {
	i := indexFold(contentType, boundaryParam)
	if i < 0 {
		return "", false
	}
	v := contentType[i+len(boundaryParam):]
	if j := strings.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	return v, v != ""
}

const boundaryParam = "boundary="

// indexFold is a case-insensitive strings.Index for an ASCII needle. It returns
// a byte offset into s, which strings.ToLower would not preserve.
func indexFold(s, needle string) int {
	for i := 0; i+len(needle) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// Split cuts body on "--boundary" and separates each piece into its header block
// and body at the first blank line. Pieces without a blank line (preamble,
// closing "--" marker, truncated parts) have nil Headers.
func Split(body []byte, boundary string) []Segment {
	pieces := bytes.Split(body, []byte("--"+boundary))
	segs := make([]Segment, 0, len(pieces))
	for _, p := range pieces {
		end := bytes.Index(p, headerEnd)
		if end < 0 {
			segs = append(segs, Segment{Body: p})
			continue
		}
		segs = append(segs, Segment{
			Headers: p[:end],
			Body:    p[end+len(headerEnd):],
		})
	}
	return segs
}

func fileFrom(seg Segment) (*File, bool) {
	if seg.Headers == nil {
		return nil, false
	}
	h := parseHeader(seg.Headers)
	cd := h.Get("Content-Disposition")
	if cd == "" {
		return nil, false
	}
	disp := parseDisposition(cd)
	name, ok := disp.Filename()
	if !ok {
		return nil, false
	}
	content := bytes.TrimSuffix(seg.Body, crlf)
	if len(content) == 0 {
		return nil, false
	}
	field := ""
	if p, ok := disp.Params["name"]; ok {
		field = p.Value
	}
	return &File{
		FieldName:   field,
		Filename:    name,
		ContentType: h.Get("Content-Type"),
		Content:     content,
	}, true
}
