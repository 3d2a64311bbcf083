package registry

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoservices/internal/params"
	"cryptoservices/internal/permission"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(permission.AllowAll{}, opts...)
	require.NoError(t, err)
	return r
}

func TestGlobalVisibleFromFreshScope(t *testing.T) {
	r := newTestRegistry(t)
	setter := r.NewScope()

	curve := params.NamedCurve("P-256")
	require.NoError(t, setter.SetGlobalProperty(ECImplicitlyCA, curve))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.NewScope()
			got, ok := Get[*params.ECParameters](s, ECImplicitlyCA)
			assert.True(t, ok)
			assert.Same(t, curve, got)
		}()
	}
	wg.Wait()
}

func TestThreadPropertyDoesNotLeak(t *testing.T) {
	r := newTestRegistry(t)
	a := r.NewScope()
	b := r.NewScope()

	p256 := params.NamedCurve("P-256")
	p384 := params.NamedCurve("P-384")

	require.NoError(t, a.SetGlobalProperty(ECImplicitlyCA, p256))
	require.NoError(t, b.SetThreadProperty(ECImplicitlyCA, p384))

	got, ok := Get[*params.ECParameters](b, ECImplicitlyCA)
	require.True(t, ok)
	assert.Same(t, p384, got)

	got, ok = Get[*params.ECParameters](a, ECImplicitlyCA)
	require.True(t, ok)
	assert.Same(t, p256, got)

	got, ok = Get[*params.ECParameters](r.NewScope(), ECImplicitlyCA)
	require.True(t, ok)
	assert.Same(t, p256, got)
}

func TestSetGlobalOverridesOwnThreadValue(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	require.NoError(t, s.SetThreadProperty(ECImplicitlyCA, params.NamedCurve("P-384")))

	p521 := params.NamedCurve("P-521")
	require.NoError(t, s.SetGlobalProperty(ECImplicitlyCA, p521))

	got, ok := Get[*params.ECParameters](s, ECImplicitlyCA)
	require.True(t, ok)
	assert.Same(t, p521, got)
}

func TestSetGlobalLeavesOtherScopeOverride(t *testing.T) {
	r := newTestRegistry(t)
	setter := r.NewScope()
	other := r.NewScope()

	p384 := params.NamedCurve("P-384")
	require.NoError(t, other.SetThreadProperty(ECImplicitlyCA, p384))
	require.NoError(t, setter.SetGlobalProperty(ECImplicitlyCA, params.NamedCurve("P-256")))

	got, _ := Get[*params.ECParameters](other, ECImplicitlyCA)
	assert.Same(t, p384, got)
}

func TestSizedPropertyLookup(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	sets := params.DefaultDSAParameters()
	values := make([]any, len(sets))
	for i, p := range sets {
		values[i] = p
	}
	require.NoError(t, s.SetGlobalProperty(DSADefaultParams, values...))

	got, ok := GetSizedFor[*params.DSAParameters](s, DSADefaultParams, 1024)
	require.True(t, ok)
	assert.Same(t, sets[2], got)

	_, ok = GetSizedFor[*params.DSAParameters](s, DSADefaultParams, 4096)
	assert.False(t, ok)

	def, ok := Get[*params.DSAParameters](s, DSADefaultParams)
	require.True(t, ok)
	assert.Same(t, sets[0], def)

	all, ok := GetSized[*params.DSAParameters](s, DSADefaultParams)
	require.True(t, ok)
	assert.Equal(t, sets, all)
}

func TestSizedPropertyReturnsCopy(t *testing.T) {
	r := newTestRegistry(t, WithGlobal(DHDefaultParams, dhValues()...))
	s := r.NewScope()

	first, ok := s.SizedProperty(DHDefaultParams)
	require.True(t, ok)
	first[0] = nil

	second, ok := s.SizedProperty(DHDefaultParams)
	require.True(t, ok)
	assert.NotNil(t, second[0])
}

func TestSizedForUnsizedProperty(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()
	require.NoError(t, s.SetGlobalProperty(ECImplicitlyCA, params.NamedCurve("P-256")))

	_, ok := s.SizedPropertyFor(ECImplicitlyCA, 256)
	assert.False(t, ok)
}

func TestUnsetProperty(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	_, ok := s.Property(DSADefaultParams)
	assert.False(t, ok)
	_, ok = s.SizedProperty(DSADefaultParams)
	assert.False(t, ok)
	_, ok = s.SizedPropertyFor(DSADefaultParams, 1024)
	assert.False(t, ok)
	_, ok = r.GlobalProperty(DSADefaultParams)
	assert.False(t, ok)
}

func TestInvalidPropertyValue(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	err := s.SetGlobalProperty(DSADefaultParams, params.NamedCurve("P-256"))
	require.ErrorIs(t, err, ErrInvalidPropertyValue)

	err = s.SetThreadProperty(DSADefaultParams)
	require.ErrorIs(t, err, ErrInvalidPropertyValue)

	err = s.SetThreadProperty(DSADefaultParams, nil)
	require.ErrorIs(t, err, ErrInvalidPropertyValue)

	_, ok := s.Property(DSADefaultParams)
	assert.False(t, ok, "failed set must not write")
}

func TestCustomProperty(t *testing.T) {
	type budget struct{ limit int }
	prop := PropertyOf[budget]("budget")

	r := newTestRegistry(t)
	s := r.NewScope()
	require.NoError(t, s.SetThreadProperty(prop, budget{limit: 3}))

	got, ok := Get[budget](s, prop)
	require.True(t, ok)
	assert.Equal(t, 3, got.limit)

	require.ErrorIs(t, s.SetThreadProperty(prop, big.NewInt(1)), ErrInvalidPropertyValue)
}

func TestClearGlobalProperty(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()
	other := r.NewScope()

	p256 := params.NamedCurve("P-256")
	require.NoError(t, s.SetGlobalProperty(ECImplicitlyCA, p256))

	prev, err := s.ClearGlobalProperty(ECImplicitlyCA)
	require.NoError(t, err)
	require.Len(t, prev, 1)
	assert.Same(t, p256, prev[0])

	_, ok := s.Property(ECImplicitlyCA)
	assert.False(t, ok, "clearing global must clear the caller's own entry")
	_, ok = other.Property(ECImplicitlyCA)
	assert.False(t, ok)

	prev, err = s.ClearGlobalProperty(ECImplicitlyCA)
	require.NoError(t, err)
	assert.Nil(t, prev)
}

func TestClearThreadProperty(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	p256 := params.NamedCurve("P-256")
	p384 := params.NamedCurve("P-384")
	require.NoError(t, s.SetGlobalProperty(ECImplicitlyCA, p256))
	require.NoError(t, s.SetThreadProperty(ECImplicitlyCA, p384))
	assert.True(t, s.HasLocal(ECImplicitlyCA))

	prev, err := s.ClearThreadProperty(ECImplicitlyCA)
	require.NoError(t, err)
	assert.Equal(t, []any{p384}, prev)

	got, _ := Get[*params.ECParameters](s, ECImplicitlyCA)
	assert.Same(t, p256, got)
}

func TestPermissionCheckedBeforeMutation(t *testing.T) {
	perms := permission.Grant(permission.ThreadLocalConfig)
	r, err := New(perms)
	require.NoError(t, err)
	s := r.NewScope()

	err = s.SetGlobalProperty(ECImplicitlyCA, params.NamedCurve("P-256"))
	require.ErrorIs(t, err, permission.ErrPermissionDenied)

	_, ok := s.Property(ECImplicitlyCA)
	assert.False(t, ok)
	assert.False(t, s.HasLocal(ECImplicitlyCA))

	_, err = s.ClearGlobalProperty(ECImplicitlyCA)
	require.ErrorIs(t, err, permission.ErrPermissionDenied)

	require.NoError(t, s.SetThreadProperty(ECImplicitlyCA, params.NamedCurve("P-256")))

	perms.Revoke(permission.ThreadLocalConfig)
	_, err = s.ClearThreadProperty(ECImplicitlyCA)
	require.ErrorIs(t, err, permission.ErrPermissionDenied)
	assert.True(t, s.HasLocal(ECImplicitlyCA))
}

func TestObserver(t *testing.T) {
	var events []Event
	r := newTestRegistry(t, WithObserver(func(ev Event) { events = append(events, ev) }))
	s := r.NewScope()

	require.NoError(t, s.SetGlobalProperty(DHDefaultParams, dhValues()...))
	require.NoError(t, s.SetThreadProperty(ECImplicitlyCA, params.NamedCurve("P-256")))
	_, err := s.ClearThreadProperty(ECImplicitlyCA)
	require.NoError(t, err)
	_, err = s.ClearGlobalProperty(DHDefaultParams)
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, EventSetGlobal, events[0].Kind)
	assert.Equal(t, 4, events[0].Values)
	assert.Equal(t, s.ID(), events[0].Scope)
	assert.Equal(t, EventSetThread, events[1].Kind)
	assert.Equal(t, EventClearThread, events[2].Kind)
	assert.Equal(t, EventClearGlobal, events[3].Kind)
	assert.Equal(t, "dhDefaultParams", events[3].Property)
}

func TestWithGlobalValidates(t *testing.T) {
	_, err := New(nil, WithGlobal(DSADefaultParams, "not params"))
	require.ErrorIs(t, err, ErrInvalidPropertyValue)
}

func TestScopeContext(t *testing.T) {
	r := newTestRegistry(t)
	s := r.NewScope()

	ctx := ContextWithScope(context.Background(), s)
	got, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = ScopeFromContext(context.Background())
	assert.False(t, ok)

	assert.NotEqual(t, s.ID(), r.NewScope().ID())
}

func TestGlobalNames(t *testing.T) {
	r := newTestRegistry(t, WithGlobal(DHDefaultParams, dhValues()...))
	s := r.NewScope()
	require.NoError(t, s.SetGlobalProperty(ECImplicitlyCA, params.NamedCurve("P-256")))

	assert.Equal(t, []string{"dhDefaultParams", "ecImplicitlyCA"}, r.GlobalNames())
}

func dhValues() []any {
	sets := params.DefaultDHParameters()
	out := make([]any, len(sets))
	for i, p := range sets {
		out[i] = p
	}
	return out
}
