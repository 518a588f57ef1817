package bridge

import (
	"io"
	"net/http"

	"github.com/tetratelabs/wazero"
)

type sourceKind uint8

const (
	sourceBytes sourceKind = iota
	sourceCompiled
	sourceResponse
	sourceReader
	sourceURL
	sourceFile
)

func (k sourceKind) String() string {
	switch k {
	case sourceBytes:
		return "bytes"
	case sourceCompiled:
		return "compiled"
	case sourceResponse:
		return "response"
	case sourceReader:
		return "reader"
	case sourceURL:
		return "url"
	case sourceFile:
		return "file"
	}
	return "unknown"
}

// Source is where module bytes come from. A nil *Source resolves to the
// bridge's default path.
type Source struct {
	compiled    wazero.CompiledModule
	response    *http.Response
	reader      io.Reader
	contentType string
	location    string
	data        []byte
	kind        sourceKind
}

// FromBytes uses raw module bytes.
func FromBytes(data []byte) *Source {
	return &Source{kind: sourceBytes, data: data}
}

// FromCompiled uses a module already compiled on the bridge's engine.
func FromCompiled(compiled wazero.CompiledModule) *Source {
	return &Source{kind: sourceCompiled, compiled: compiled}
}

// FromResponse reads the module from an HTTP response. The body is closed
// once it has been consumed.
func FromResponse(resp *http.Response) *Source {
	return &Source{kind: sourceResponse, response: resp}
}

// FromReader reads the module from r as if it were a response served with
// the given content type.
func FromReader(contentType string, r io.Reader) *Source {
	return &Source{kind: sourceReader, reader: r, contentType: contentType}
}

// FromURL fetches the module with the bridge's HTTP client.
func FromURL(url string) *Source {
	return &Source{kind: sourceURL, location: url}
}

// FromFile reads the module from a file.
func FromFile(path string) *Source {
	return &Source{kind: sourceFile, location: path}
}

// streams reports whether the source is response-like.
func (s *Source) streams() bool {
	return s.kind == sourceResponse || s.kind == sourceReader || s.kind == sourceURL
}
