package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterCounters(t *testing.T) {
	const device = "regs-test"

	AddRegisterReads(device, 4, 1)
	AddRegisterReads(device, 2, 0)
	AddRegisterWrites(device, 3, 2)

	if got := testutil.ToFloat64(registerReads.WithLabelValues(device)); got != 6 {
		t.Errorf("reads = %v, want 6", got)
	}
	if got := testutil.ToFloat64(registerWrites.WithLabelValues(device)); got != 3 {
		t.Errorf("writes = %v, want 3", got)
	}
	if got := testutil.ToFloat64(registerFailures.WithLabelValues(device, "read")); got != 1 {
		t.Errorf("read failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(registerFailures.WithLabelValues(device, "write")); got != 2 {
		t.Errorf("write failures = %v, want 2", got)
	}
}

func TestRecordRPCRequest(t *testing.T) {
	op := "autocirculate:test"
	RecordRPCRequest(op, "SUCCESS", time.Millisecond)
	RecordRPCRequest(op, "SUCCESS", 2*time.Millisecond)
	RecordRPCRequest(op, "INVALID_STATE", time.Millisecond)

	if got := testutil.ToFloat64(rpcRequests.WithLabelValues(op, "SUCCESS")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rpcRequests.WithLabelValues(op, "INVALID_STATE")); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(rpcDuration); n < 1 {
		t.Errorf("duration series = %d, want at least 1", n)
	}
}
