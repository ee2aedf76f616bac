package bapp

import (
	"bytes"
	"io"
	"os"

	"github.com/advdv/bpipe"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// PipelineFile is the optional yaml configuration of the pipeline, read from BP_PIPELINE_FILE:
//
//	renderer: json
//	trace_errors: true
//	max_body_length: 1048576
//	cors:
//	  origins: ["https://app.example.com"]
//	  credentials: true
type PipelineFile struct {
	// Renderer is "text" (default) or "json".
	Renderer      string             `yaml:"renderer"`
	PrettyErrors  bool               `yaml:"pretty_errors"`
	TraceErrors   bool               `yaml:"trace_errors"`
	MaxBodyLength int64              `yaml:"max_body_length"`
	CORS          *bpipe.CORSOptions `yaml:"cors"`
}

// LoadPipelineFile reads and checks the pipeline file. An empty path results in the defaults.
func LoadPipelineFile(path string) (pf PipelineFile, err error) {
	if path == "" {
		return pf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pf, errors.Wrap(err, "failed to read pipeline file")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return pf, errors.Wrapf(err, "failed to decode pipeline file %q", path)
	}

	switch pf.Renderer {
	case "", "text", "json":
	default:
		return pf, errors.Newf("unsupported renderer %q in pipeline file (supported: text, json)", pf.Renderer)
	}

	return pf, nil
}

// ErrorRenderer returns the configured renderer.
func (pf PipelineFile) ErrorRenderer() bpipe.ErrorRenderer {
	if pf.Renderer == "json" {
		return bpipe.JSONRenderer{Pretty: pf.PrettyErrors}
	}

	return bpipe.PlainTextRenderer{}
}

// Guards returns the guards that apply to every route: the CORS guard when configured.
func (pf PipelineFile) Guards() []bpipe.Guard {
	if pf.CORS == nil {
		return nil
	}

	return []bpipe.Guard{bpipe.CORSGuard(*pf.CORS)}
}

// BodyOptions returns the body limit for body guards, see [bpipe.BodyGuard].
func (pf PipelineFile) BodyOptions() bpipe.BodyOptions {
	return bpipe.BodyOptions{MaxLength: pf.MaxBodyLength}
}
