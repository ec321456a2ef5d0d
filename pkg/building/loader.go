package building

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"
)

// Format selects the dataset decoder.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// snappySuffix marks a snappy block-compressed dataset, e.g. floor1.yaml.sz.
const snappySuffix = ".sz"

// ObjectFetcher reads a dataset from remote storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader resolves a dataset source to a Graph. Local paths are read from
// disk; s3://bucket/key sources go through Fetcher.
type Loader struct {
	Fetcher ObjectFetcher
}

// Load is a convenience for local files.
func Load(path string) (*Graph, error) {
	return (&Loader{}).Load(context.Background(), path)
}

// Load reads, decompresses, decodes and assembles the dataset at source.
func (l *Loader) Load(ctx context.Context, source string) (*Graph, error) {
	data, err := l.read(ctx, source)
	if err != nil {
		return nil, err
	}

	name := source
	if strings.HasSuffix(name, snappySuffix) {
		name = strings.TrimSuffix(name, snappySuffix)
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, &DatasetError{Op: "decompress", Entity: "source", ID: source, Cause: err}
		}
	}

	format, err := FormatFor(name)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if bucket, key, ok := splitS3URL(source); ok {
		if l.Fetcher == nil {
			return nil, &DatasetError{Op: "load", Entity: "source", ID: source, Cause: fmt.Errorf("no object fetcher configured")}
		}
		data, err := l.Fetcher.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, &DatasetError{Op: "load", Entity: "source", ID: source, Cause: err}
		}
		return data, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, &DatasetError{Op: "load", Entity: "source", ID: source, Cause: err}
	}
	return data, nil
}

func splitS3URL(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, ok = strings.Cut(rest, "/")
	return bucket, key, ok && bucket != "" && key != ""
}

// FormatFor picks a decoder from the file extension.
func FormatFor(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", &DatasetError{Op: "decode", Entity: "source", ID: name, Cause: ErrUnsupportedInput}
	}
}

// Parse decodes raw dataset bytes and builds the graph.
func Parse(data []byte, format Format) (*Graph, error) {
	var d Dataset
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, &DatasetError{Op: "decode", Entity: "yaml", Cause: err}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, &DatasetError{Op: "decode", Entity: "json", Cause: err}
		}
	default:
		return nil, &DatasetError{Op: "decode", Entity: string(format), Cause: ErrUnsupportedInput}
	}
	return New(d)
}

// Encode serialises the graph in the given format, snappy-compressing when compress is set.
func Encode(g *Graph, format Format, compress bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(g.Dataset())
	case FormatJSON:
		data, err = json.MarshalIndent(g.Dataset(), "", "  ")
	default:
		err = ErrUnsupportedInput
	}
	if err != nil {
		return nil, &DatasetError{Op: "encode", Entity: string(format), Cause: err}
	}
	if compress {
		data = snappy.Encode(nil, data)
	}
	return data, nil
}
