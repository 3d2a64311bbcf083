package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/markkurossi/tabulate"

	"cryptoservices/internal/constraints"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/params"
	"cryptoservices/internal/registrar"
	"cryptoservices/internal/registry"
	"cryptoservices/internal/store"
)

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	cfg := loadConfig()
	r := openRegistrar(cfg, setupLogging(cfg))
	defer r.Close()

	writeStatus(os.Stdout, r, cfg.Entropy.SeedSource)
}

func writeStatus(w io.Writer, r *registrar.Registrar, seedSource string) {
	ns := r.NativeServices()
	policy := r.ServicesConstraints()

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Setting").SetAlign(tabulate.ML)
	tab.Header("Value").SetAlign(tabulate.ML)

	add := func(k, v string) {
		row := tab.Row()
		row.Column(k)
		row.Column(v)
	}
	add("Library", r.Info())
	add("Entropy strategy", r.Strategy().String())
	add("Daemon started", yesNo(r.Daemon().Started()))
	if seedSource == "" {
		seedSource = "platform"
	}
	add("Seed source", seedSource)
	add("Native variant", ns.Variant().String())
	add("Native supported", yesNo(ns.IsSupported()))
	add("Native enabled", yesNo(r.IsNativeEnabled()))
	add("Native services", orNone(strings.Join(ns.Names(), ", ")))
	add("CPU features", orNone(strings.Join(ns.Features().List(), ", ")))
	add("Constraints", constraints.Describe(policy))
	add("Constraints locked", yesNo(r.ConstraintsLocked()))
	add("Global properties", orNone(strings.Join(r.Properties().GlobalNames(), ", ")))

	tab.Print(w)
}

func cmdSample(args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	bits := fs.Int("bits", 256, "entropy bits per sample")
	count := fs.Int("n", 4, "number of samples")
	fs.Parse(args)

	cfg := loadConfig()
	r := openRegistrar(cfg, setupLogging(cfg))
	defer r.Close()

	if err := writeSamples(os.Stdout, r, *bits, *count); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeSamples(w io.Writer, r *registrar.Registrar, bits, count int) error {
	src, err := r.DefaultEntropySourceProvider().Get(bits)
	if err != nil {
		return fmt.Errorf("create entropy source: %w", err)
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("#").SetAlign(tabulate.MR)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("Sample").SetAlign(tabulate.ML)

	for i := 0; i < count; i++ {
		start := time.Now()
		out, err := src.GetEntropy()
		if err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", i+1))
		row.Column(time.Since(start).String())
		row.Column(hex.EncodeToString(out))
	}
	fmt.Fprintf(w, "Strategy: %s, %d bits per sample\n", r.Strategy(), src.EntropySize())
	tab.Print(w)
	return nil
}

func cmdRandom(args []string) {
	fs := flag.NewFlagSet("random", flag.ExitOnError)
	n := fs.Int("n", 32, "number of bytes")
	raw := fs.Bool("raw", false, "write raw bytes instead of hex")
	fs.Parse(args)

	if *n <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: cryptoservicesctl random [-n bytes] [-raw]")
		os.Exit(1)
	}

	cfg := loadConfig()
	r := openRegistrar(cfg, setupLogging(cfg))
	defer r.Close()

	scope := r.NewScope()
	defer r.ReleaseScope(scope)

	rd, err := r.SecureRandom(scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	buf := make([]byte, *n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading random bytes: %v\n", err)
		os.Exit(1)
	}
	if *raw {
		os.Stdout.Write(buf)
		return
	}
	fmt.Println(hex.EncodeToString(buf))
}

func cmdParams(args []string) {
	fs := flag.NewFlagSet("params", flag.ExitOnError)
	size := fs.Int("size", 0, "show only the set with this modulus size")
	fs.Parse(args)

	cfg := loadConfig()
	r := openRegistrar(cfg, setupLogging(cfg))
	defer r.Close()

	if err := writeParams(os.Stdout, r.NewScope(), *size); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeParams(w io.Writer, scope *registry.Scope, size int) error {
	var sets []*params.DSAParameters
	if size > 0 {
		p, ok := registry.GetSizedFor[*params.DSAParameters](scope, registry.DSADefaultParams, size)
		if !ok {
			return fmt.Errorf("no default DSA parameters of %d bits", size)
		}
		sets = append(sets, p)
	} else {
		all, ok := registry.GetSized[*params.DSAParameters](scope, registry.DSADefaultParams)
		if !ok {
			return fmt.Errorf("no default DSA parameters installed")
		}
		sets = all
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("P bits").SetAlign(tabulate.MR)
	tab.Header("Q bits").SetAlign(tabulate.MR)
	tab.Header("Counter").SetAlign(tabulate.MR)
	tab.Header("DH min private bits").SetAlign(tabulate.MR)
	tab.Header("Seed").SetAlign(tabulate.ML)

	for _, p := range sets {
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", p.ModulusBitLen()))
		row.Column(fmt.Sprintf("%d", p.Q.BitLen()))
		seed, counter := "-", "-"
		if p.Validation != nil {
			seed = hex.EncodeToString(p.Validation.Seed)
			counter = fmt.Sprintf("%d", p.Validation.Counter)
		}
		row.Column(counter)
		dh, ok := registry.GetSizedFor[*params.DHParameters](scope, registry.DHDefaultParams, p.ModulusBitLen())
		if ok {
			row.Column(fmt.Sprintf("%d", dh.M))
		} else {
			row.Column("-")
		}
		row.Column(seed)
	}
	tab.Print(w)
	return nil
}

func cmdAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	eventType := fs.String("type", "", "only show events of this type")
	since := fs.Duration("since", 0, "only show events newer than this")
	limit := fs.Int("limit", 50, "maximum number of events")
	prune := fs.Duration("prune", 0, "delete events older than this instead of listing")
	fs.Parse(args)

	cfg := loadConfig()
	if cfg.Audit.DatabasePath == "" {
		fmt.Fprintln(os.Stderr, "No audit database configured")
		os.Exit(1)
	}
	if _, err := os.Stat(cfg.Audit.DatabasePath); os.IsNotExist(err) {
		fmt.Println("No audit database found")
		return
	}

	st, err := store.Open(cfg.Audit.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audit database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if *prune > 0 {
		n, err := st.Prune(ctx, time.Now().Add(-*prune))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d events\n", n)
		return
	}

	q := store.Query{EventType: logging.AuditEventType(*eventType), Limit: *limit}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}
	events, err := st.Recent(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading audit trail: %v\n", err)
		os.Exit(1)
	}
	writeAudit(os.Stdout, events)
}

func writeAudit(w io.Writer, events []logging.AuditEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events")
		return
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Time").SetAlign(tabulate.ML)
	tab.Header("Event").SetAlign(tabulate.ML)
	tab.Header("Action").SetAlign(tabulate.ML)
	tab.Header("Resource").SetAlign(tabulate.ML)
	tab.Header("Scope").SetAlign(tabulate.MR)
	tab.Header("Result").SetAlign(tabulate.ML)

	for _, e := range events {
		row := tab.Row()
		row.Column(e.Timestamp.Local().Format(time.DateTime))
		row.Column(string(e.EventType))
		row.Column(e.Action)
		row.Column(orNone(e.Resource))
		if e.Scope == 0 {
			row.Column("-")
		} else {
			row.Column(fmt.Sprintf("%d", e.Scope))
		}
		result := e.Result
		if e.Error != "" {
			result += ": " + e.Error
		}
		row.Column(result)
	}
	tab.Print(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
