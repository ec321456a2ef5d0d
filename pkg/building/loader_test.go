package building

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
)

func TestLoadYAML(t *testing.T) {
	g, err := Load(filepath.Join("testdata", "small.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.Name() != "test floor" {
		t.Errorf("Name() = %q", g.Name())
	}
	if g.EdgeCount() != 3 {
		t.Errorf("EdgeCount() = %d, want 3", g.EdgeCount())
	}
	exits := g.Exits()
	if len(exits) != 2 || exits[0] != "C" || exits[1] != "D" {
		t.Errorf("Exits() = %v, want [C D]", exits)
	}
	if len(g.Walls()) != 1 {
		t.Errorf("Walls() = %v", g.Walls())
	}
	if b := g.Bound(); b.Min.X() != -10 || b.Max.Y() != 100 {
		t.Errorf("Bound() = %v", b)
	}
}

func TestLoadSnappyJSONRoundTrip(t *testing.T) {
	src, err := Load(filepath.Join("testdata", "small.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Encode(src, FormatJSON, true)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "floor.json.sz")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.NodeCount() != src.NodeCount() || g.EdgeCount() != src.EdgeCount() {
		t.Errorf("round trip lost data: %d/%d nodes, %d/%d edges", g.NodeCount(), src.NodeCount(), g.EdgeCount(), src.EdgeCount())
	}
	if len(g.Exits()) != 2 {
		t.Errorf("Exits() = %v", g.Exits())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "floor.toml")
	_ = os.WriteFile(unknown, []byte("x"), 0o600)
	corrupt := filepath.Join(dir, "floor.yaml.sz")
	_ = os.WriteFile(corrupt, []byte("not snappy"), 0o600)
	extra := filepath.Join(dir, "floor.yaml")
	_ = os.WriteFile(extra, []byte("nodes: [{id: a}]\nfloors: 2\n"), 0o600)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), unknown, corrupt, extra} {
		if _, err := Load(path); !errors.Is(err, ErrInvalidDataset) {
			t.Errorf("Load(%s) error = %v, want ErrInvalidDataset", filepath.Base(path), err)
		}
	}
}

type fakeFetcher struct {
	objects map[string][]byte
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, bucket, key string) ([]byte, error) {
	f.calls = append(f.calls, bucket+"/"+key)
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

func TestLoaderS3Source(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "small.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{objects: map[string][]byte{
		"plans/hall/floor1.yaml.sz": snappy.Encode(nil, raw),
	}}
	loader := &Loader{Fetcher: fetcher}

	g, err := loader.Load(context.Background(), "s3://plans/hall/floor1.yaml.sz")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if g.NodeCount() != 4 {
		t.Errorf("NodeCount() = %d", g.NodeCount())
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "plans/hall/floor1.yaml.sz" {
		t.Errorf("fetch calls = %v", fetcher.calls)
	}

	if _, err := loader.Load(context.Background(), "s3://plans/missing.yaml"); !errors.Is(err, ErrInvalidDataset) {
		t.Errorf("missing object error = %v", err)
	}
	if _, err := (&Loader{}).Load(context.Background(), "s3://plans/hall/floor1.yaml.sz"); err == nil {
		t.Error("expected error without a fetcher")
	}
}

func TestSampleBuildingLoads(t *testing.T) {
	g, err := Load(filepath.Join("..", "..", "data", "science-hall.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(g.Exits()) != 4 {
		t.Errorf("Exits() = %v, want 4 exits", g.Exits())
	}
	for _, n := range g.Nodes() {
		if g.Degree(n.ID) == 0 {
			t.Errorf("node %s is isolated", n.ID)
		}
	}
}
