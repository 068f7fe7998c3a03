package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
)

// capture redirects Flush output for one test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "caption-lambda"
	t.Cleanup(func() { functionName = "" })

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("namespace = %s, want TestNamespace", r.namespace)
	}
	if r.dimensions["FunctionName"] != "caption-lambda" {
		t.Errorf("FunctionName dimension = %s, want caption-lambda", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	buf := capture(t)
	functionName = ""

	Op("ingest").
		Metric("LatencyMs", 1234.5, UnitMilliseconds).
		Metric("ImagesUploaded", 3, UnitCount).
		Property("projectId", "abc-123").
		Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("EMF output is not JSON: %v\nOutput: %s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]any)
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]any)
	if cw["Namespace"] != Namespace {
		t.Errorf("Namespace = %v, want %s", cw["Namespace"], Namespace)
	}
	defs := cw["Metrics"].([]any)
	if len(defs) != 2 || defs[0].(map[string]any)["Name"] != "ImagesUploaded" {
		t.Errorf("Metrics = %v, want 2 definitions sorted by name", defs)
	}

	if doc["Operation"] != "ingest" {
		t.Errorf("Operation = %v, want ingest", doc["Operation"])
	}
	if doc["LatencyMs"] != 1234.5 || doc["ImagesUploaded"] != float64(3) {
		t.Errorf("metric values = %v, %v", doc["LatencyMs"], doc["ImagesUploaded"])
	}
	if doc["projectId"] != "abc-123" {
		t.Errorf("projectId = %v, want abc-123", doc["projectId"])
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) || bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Errorf("EMF output must be exactly one line: %q", buf.String())
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := capture(t)
	New("Test").Dimension("Operation", "noop").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	functionName = ""
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) || rec.metrics["Calls"].Unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
