package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aeminvert/internal/model"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("minimal_run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-minimal-1" {
		t.Fatalf("unexpected run id: %s", run.ID)
	}
	if run.Request.DegreeLateral != 3 || run.Request.DegreeDepth != 2 {
		t.Fatalf("unexpected request: %+v", run.Request)
	}
	if len(run.Chains) != 1 || run.Chains[0].Coefficients != 5 {
		t.Fatalf("unexpected chains: %+v", run.Chains)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	in := sampleRun("run-x", fixedTime())
	data, err := EncodeRun(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || !out.CreatedAt.Equal(in.CreatedAt) || out.Chains[0].Likelihood != 12.5 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("run-old", fixedTime())
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	block := model.HistoryBlockRecord{RunID: "r", Data: []byte{1}}
	data, err = EncodeHistoryBlock(block)
	if err != nil {
		t.Fatalf("encode block: %v", err)
	}
	if _, err := DecodeHistoryBlock(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch for unversioned block, got %v", err)
	}
}

func TestModelCodecKeepsTreeBytes(t *testing.T) {
	in := model.ModelRecord{VersionedRecord: Versioned(), RunID: "r", Chain: 1, Tree: []byte{0, 255, 16}}
	data, err := EncodeModel(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeModel(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out.Tree) != string(in.Tree) || out.Chain != 1 {
		t.Fatalf("unexpected model: %+v", out)
	}
}
