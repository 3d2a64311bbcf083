package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"cryptoservices/internal/entropy"
	"cryptoservices/internal/health"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/native"
	"cryptoservices/internal/registrar"
)

func testRegistrar(t *testing.T) *registrar.Registrar {
	t.Helper()
	r, err := registrar.New(
		registrar.WithLogger(logging.Discard()),
		registrar.WithNativeServices(native.NewServices(native.Features{}, false)),
		registrar.WithBaseProvider(entropy.NewStreamProvider("test", rand.Reader)),
	)
	if err != nil {
		t.Fatalf("registrar.New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWriteStatus(t *testing.T) {
	r := testRegistrar(t)

	var buf bytes.Buffer
	writeStatus(&buf, r, "")
	out := buf.String()

	for _, want := range []string{"one-shot", "platform", "software", "permissive", "dsaDefaultParams"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSamples(t *testing.T) {
	r := testRegistrar(t)

	var buf bytes.Buffer
	if err := writeSamples(&buf, r, 128, 3); err != nil {
		t.Fatalf("writeSamples: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "128 bits per sample") {
		t.Errorf("missing header:\n%s", out)
	}
	// Three rows of 32 hex digits.
	if n := strings.Count(out, " 3 "); n == 0 {
		t.Errorf("expected a third sample row:\n%s", out)
	}

	if err := writeSamples(&buf, r, 0, 1); err == nil {
		t.Error("expected error for zero bits")
	}
}

func TestWriteParams(t *testing.T) {
	r := testRegistrar(t)

	var buf bytes.Buffer
	if err := writeParams(&buf, r.NewScope(), 0); err != nil {
		t.Fatalf("writeParams: %v", err)
	}
	for _, want := range []string{"512", "768", "1024", "2048"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %s-bit set:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeParams(&buf, r.NewScope(), 1024); err != nil {
		t.Fatalf("writeParams 1024: %v", err)
	}
	if strings.Contains(buf.String(), "2048") {
		t.Errorf("size filter ignored:\n%s", buf.String())
	}

	if err := writeParams(&buf, r.NewScope(), 4096); err == nil {
		t.Error("expected error for 4096 bits")
	}
}

func TestWriteAudit(t *testing.T) {
	var buf bytes.Buffer
	writeAudit(&buf, nil)
	if !strings.Contains(buf.String(), "No audit events") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	writeAudit(&buf, []logging.AuditEvent{
		logging.PropertyEvent("set_global", "ecImplicitlyCA", 7, 1),
		{
			Timestamp: time.Now(),
			EventType: logging.AuditEventPermission,
			Action:    "set_secure_random",
			Result:    logging.ResultDenied,
			Error:     "permission: denied",
		},
	})
	out := buf.String()
	for _, want := range []string{"property_set", "ecImplicitlyCA", "denied: permission: denied"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit output missing %q:\n%s", want, out)
		}
	}
}

func TestHealthChecker(t *testing.T) {
	r := testRegistrar(t)
	c := newHealthChecker(r)

	results := c.Check(context.Background())
	if got := results["entropy"].Status; got != health.StatusHealthy {
		t.Errorf("entropy check = %s (%s)", got, results["entropy"].Error)
	}
	if got := results["native"].Status; got != health.StatusHealthy {
		t.Errorf("native check = %s", got)
	}
	if got := c.OverallStatus(); got != health.StatusHealthy {
		t.Errorf("overall = %s", got)
	}
}
