package registrar

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoservices/internal/config"
	"cryptoservices/internal/constraints"
	"cryptoservices/internal/entropy"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/metrics"
	"cryptoservices/internal/native"
	"cryptoservices/internal/params"
	"cryptoservices/internal/permission"
	"cryptoservices/internal/registry"
	"cryptoservices/internal/store"
)

type memRecorder struct {
	mu     sync.Mutex
	events []logging.AuditEvent
}

func (m *memRecorder) Record(_ context.Context, ev logging.AuditEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) ofType(t logging.AuditEventType) []logging.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []logging.AuditEvent
	for _, ev := range m.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

// hwBackend is a fake hardware RNG returning 0xA5.
type hwBackend struct{ closed bool }

func (b *hwBackend) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0xa5
	}
	return len(p), nil
}
func (b *hwBackend) Close() error { b.closed = true; return nil }
func (b *hwBackend) Name() string { return "fake-hwrng" }
func (b *hwBackend) Service() string { return native.ServiceNRBG }

type fixture struct {
	r       *Registrar
	audit   *memRecorder
	metrics *metrics.ServicesMetrics
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		audit:   &memRecorder{},
		metrics: metrics.NewServicesMetrics(metrics.NewRegistry("test", "")),
	}
	all := []Option{
		WithConfig(cfg),
		WithLogger(logging.Discard()),
		WithMetrics(f.metrics),
		WithAuditRecorder(f.audit),
		WithNativeServices(native.NewServices(native.Features{}, false)),
		WithBaseProvider(entropy.NewStreamProvider("test", rand.Reader)),
	}
	r, err := New(append(all, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	f.r = r
	return f
}

func TestDefaultParametersInstalled(t *testing.T) {
	f := newFixture(t, nil)
	scope := f.r.NewScope()

	p, ok := registry.GetSizedFor[*params.DSAParameters](scope, registry.DSADefaultParams, 1024)
	require.True(t, ok)
	assert.Equal(t, 1024, p.ModulusBitLen())

	_, ok = registry.GetSizedFor[*params.DSAParameters](scope, registry.DSADefaultParams, 4096)
	assert.False(t, ok)

	all, ok := registry.GetSized[*params.DSAParameters](scope, registry.DSADefaultParams)
	require.True(t, ok)
	require.Len(t, all, 4)
	assert.Equal(t, 512, all[0].ModulusBitLen())

	dh, ok := registry.GetSizedFor[*params.DHParameters](scope, registry.DHDefaultParams, 2048)
	require.True(t, ok)
	assert.Equal(t, 2048, dh.ModulusBitLen())

	_, ok = registry.Get[*params.ECParameters](scope, registry.ECImplicitlyCA)
	assert.False(t, ok)
}

func TestPropertyChangesAudited(t *testing.T) {
	f := newFixture(t, nil)
	scope := f.r.NewScope()

	require.NoError(t, scope.SetGlobalProperty(registry.ECImplicitlyCA, params.NamedCurve("P-256")))
	_, err := scope.ClearGlobalProperty(registry.ECImplicitlyCA)
	require.NoError(t, err)

	set := f.audit.ofType(logging.AuditEventPropertySet)
	require.Len(t, set, 1)
	assert.Equal(t, "ecImplicitlyCA", set[0].Resource)
	assert.Equal(t, uint64(scope.ID()), set[0].Scope)
	assert.Len(t, f.audit.ofType(logging.AuditEventPropertyCleared), 1)
	assert.Equal(t, uint64(2), f.metrics.PropertyChanges.Value())
}

func TestSecureRandomPerScope(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.r.NewScope(), f.r.NewScope()

	ra, err := f.r.SecureRandom(a)
	require.NoError(t, err)
	again, err := f.r.SecureRandom(a)
	require.NoError(t, err)
	assert.Same(t, ra, again)

	rb, err := f.r.SecureRandom(b)
	require.NoError(t, err)
	assert.NotSame(t, ra, rb)

	bufA := make([]byte, 64)
	bufB := make([]byte, 64)
	_, err = io.ReadFull(ra, bufA)
	require.NoError(t, err)
	_, err = io.ReadFull(rb, bufB)
	require.NoError(t, err)
	assert.NotEqual(t, bufA, bufB)
	assert.Equal(t, int64(2), f.metrics.CachedReaders.Value())

	f.r.ReleaseScope(a)
	fresh, err := f.r.SecureRandom(a)
	require.NoError(t, err)
	assert.NotSame(t, ra, fresh)
}

func TestSecureRandomConcurrentScopes(t *testing.T) {
	f := newFixture(t, nil)
	scope := f.r.NewScope()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		readers = map[io.Reader]bool{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rd, err := f.r.SecureRandom(scope)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			readers[rd] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, readers, 1, "one reader per scope")
}

func TestSecureRandomOr(t *testing.T) {
	f := newFixture(t, nil)
	mine := bytes.NewReader([]byte("abc"))

	got, err := f.r.SecureRandomOr(nil, mine)
	require.NoError(t, err)
	assert.Same(t, mine, got)

	got, err = f.r.SecureRandomOr(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSetSecureRandom(t *testing.T) {
	f := newFixture(t, nil)
	fixed := bytes.NewReader(make([]byte, 32))

	require.NoError(t, f.r.SetSecureRandom(fixed))
	for _, s := range []*registry.Scope{nil, f.r.NewScope(), f.r.NewScope()} {
		got, err := f.r.SecureRandom(s)
		require.NoError(t, err)
		assert.Same(t, fixed, got)
	}

	require.NoError(t, f.r.SetSecureRandom(nil))
	got, err := f.r.SecureRandom(nil)
	require.NoError(t, err)
	assert.NotSame(t, fixed, got, "nil restores the per-scope default")

	events := f.audit.ofType(logging.AuditEventRandomProvider)
	require.Len(t, events, 2)
	assert.Equal(t, "custom", events[0].Resource)
	assert.Equal(t, "default", events[1].Resource)
}

func TestMutationsRequirePermission(t *testing.T) {
	perms := permission.Grant(permission.ThreadLocalConfig)
	f := newFixture(t, nil, WithPermissions(perms))
	scope := f.r.NewScope()

	err := f.r.SetSecureRandom(bytes.NewReader(nil))
	require.ErrorIs(t, err, permission.ErrPermissionDenied)

	err = f.r.SetServicesConstraints(constraints.BitsOfSecurity{Minimum: 128})
	require.ErrorIs(t, err, permission.ErrPermissionDenied)
	assert.False(t, f.r.ConstraintsLocked())

	err = scope.SetGlobalProperty(registry.ECImplicitlyCA, params.NamedCurve("P-384"))
	require.ErrorIs(t, err, permission.ErrPermissionDenied)
	_, ok := f.r.Properties().GlobalProperty(registry.ECImplicitlyCA)
	assert.False(t, ok)

	require.NoError(t, scope.SetThreadProperty(registry.ECImplicitlyCA, params.NamedCurve("P-384")))

	denied := f.audit.ofType(logging.AuditEventPermission)
	require.Len(t, denied, 2)
	assert.Equal(t, logging.ResultDenied, denied[0].Result)
}

func TestCascadeOneShotByDefault(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, StrategyOneShot, f.r.Strategy())

	src, err := f.r.DefaultEntropySourceProvider().Get(256)
	require.NoError(t, err)
	require.IsType(t, &entropy.DRBGSource{}, src)
	assert.Equal(t, entropy.OneShot.Name, src.(*entropy.DRBGSource).Variant().Name)
	assert.False(t, f.r.Daemon().Started())

	out, err := src.GetEntropy()
	require.NoError(t, err)
	assert.Len(t, out, 32)
}

func TestCascadeDaemonWhenConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entropy.BackgroundThread = true
	f := newFixture(t, cfg)

	assert.Equal(t, StrategyDaemon, f.r.Strategy())
	assert.False(t, f.r.Daemon().Started(), "started lazily")

	src, err := f.r.DefaultEntropySourceProvider().Get(384)
	require.NoError(t, err)
	assert.Equal(t, entropy.Hybrid.Name, src.(*entropy.DRBGSource).Variant().Name)
	assert.True(t, f.r.Daemon().Started())

	out, err := src.GetEntropy()
	require.NoError(t, err)
	assert.Len(t, out, 48)
}

func TestCascadePrefersNative(t *testing.T) {
	hw := &hwBackend{}
	f := newFixture(t, nil, WithNativeServices(native.NewServices(native.Features{}, true, hw)))

	assert.True(t, f.r.IsNativeEnabled())
	assert.True(t, f.r.HasEnabledService(native.ServiceNRBG))
	assert.Equal(t, StrategyNative, f.r.Strategy())

	src, err := f.r.DefaultEntropySourceProvider().Get(128)
	require.NoError(t, err)
	out, err := src.GetEntropy()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xa5}, 16), out, "native bytes are not DRBG wrapped")

	f.r.SetNativeEnabled(false)
	assert.False(t, f.r.IsNativeEnabled())
	assert.Equal(t, StrategyOneShot, f.r.Strategy())
	assert.Len(t, f.audit.ofType(logging.AuditEventNativeToggle), 1)

	f.r.Close()
	assert.False(t, hw.closed, "injected services belong to the caller")
}

func TestApplyConfigSwitchesStrategy(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, StrategyOneShot, f.r.Strategy())

	cfg := config.DefaultConfig()
	cfg.Entropy.BackgroundThread = true
	cfg.Entropy.GatherPauseMs = 1
	f.r.ApplyConfig(cfg)

	assert.Equal(t, StrategyDaemon, f.r.Strategy())
	assert.Len(t, f.audit.ofType(logging.AuditEventConfigReload), 1)

	f.r.ApplyConfig(nil)
	assert.Equal(t, StrategyDaemon, f.r.Strategy())
}

func TestConstraintsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Constraints.MinimumBitsOfSecurity = 112
	cfg.Constraints.Exceptions = []string{"legacy-sha1"}
	f := newFixture(t, cfg)

	require.True(t, f.r.ConstraintsLocked())

	weak := constraints.Service{Name: "RSA-1024", Bits: 80, Use: constraints.PurposeSigning}
	err := f.r.CheckConstraints(weak)
	require.ErrorIs(t, err, constraints.ErrConstraintViolation)
	assert.Equal(t, uint64(1), f.metrics.ConstraintRejects.Value())

	require.NoError(t, f.r.CheckConstraints(constraints.Service{Name: "legacy-sha1", Bits: 63}))
	require.NoError(t, f.r.CheckConstraints(constraints.Service{Name: "AES-128", Bits: 128}))

	// Locked: the replacement is ignored without an error.
	require.NoError(t, f.r.SetServicesConstraints(constraints.Permissive))
	require.ErrorIs(t, f.r.CheckConstraints(weak), constraints.ErrConstraintViolation)
	ignored := f.audit.ofType(logging.AuditEventConstraintsIgnored)
	require.Len(t, ignored, 1)
	assert.Equal(t, logging.ResultIgnored, ignored[0].Result)

	over := config.DefaultConfig()
	over.Constraints.AllowOverride = true
	f.r.ApplyConfig(over)
	require.NoError(t, f.r.SetServicesConstraints(constraints.Permissive))
	require.NoError(t, f.r.CheckConstraints(weak))
	assert.True(t, constraints.IsPermissive(f.r.ServicesConstraints()))
}

func TestAuditSinksFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.LogPath = filepath.Join(dir, "audit.log")
	cfg.Audit.DatabasePath = filepath.Join(dir, "audit.db")

	r, err := New(
		WithConfig(cfg),
		WithLogger(logging.Discard()),
		WithNativeServices(native.NewServices(native.Features{}, false)),
		WithBaseProvider(entropy.NewStreamProvider("test", rand.Reader)),
	)
	require.NoError(t, err)

	scope := r.NewScope()
	require.NoError(t, scope.SetThreadProperty(registry.ECImplicitlyCA, params.NamedCurve("P-521")))
	require.NoError(t, r.Close())

	st, err := store.Open(cfg.Audit.DatabasePath)
	require.NoError(t, err)
	defer st.Close()

	events, err := st.Recent(context.Background(), store.Query{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, logging.AuditEventPropertySet, events[0].EventType)
	assert.Equal(t, logging.AuditEventStartup, events[1].EventType)
}

func TestAuditSinkOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	cfg := config.DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.LogPath = ""
	cfg.Audit.DatabasePath = filepath.Join(blocker, "audit.db")

	_, err := New(WithConfig(cfg), WithLogger(logging.Discard()),
		WithNativeServices(native.NewServices(native.Features{}, false)))
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, nil)
	info := f.r.Info()
	assert.True(t, strings.HasPrefix(info, "cryptoservices v"+Version))
	assert.Contains(t, info, "software")
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "native", StrategyNative.String())
	assert.Equal(t, "daemon", StrategyDaemon.String())
	assert.Equal(t, "one-shot", StrategyOneShot.String())
	assert.Equal(t, "unknown", Strategy(9).String())
}
