package constraints

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoservices/internal/logging"
	"cryptoservices/internal/permission"
)

var rejectAll = PolicyFunc(func(s ServiceProperties) error {
	return errors.Join(ErrConstraintViolation, errors.New(s.ServiceName()))
})

func TestDefaultIsPermissive(t *testing.T) {
	g := NewGate(nil)

	assert.True(t, IsPermissive(g.Current()))
	assert.False(t, g.Locked())
	assert.NoError(t, g.Check(Service{Name: "DES", Bits: 56}))
}

func TestSetInstallsAndLocks(t *testing.T) {
	g := NewGate(permission.AllowAll{})

	require.NoError(t, g.Set(BitsOfSecurity{Minimum: 112}))
	assert.True(t, g.Locked())

	err := g.Check(Service{Name: "DESede", Bits: 80, Use: PurposeEncryption})
	require.ErrorIs(t, err, ErrConstraintViolation)
	assert.Contains(t, err.Error(), "encryption")

	assert.NoError(t, g.Check(Service{Name: "AES", Bits: 128}))
}

func TestPermissiveSetDoesNotLock(t *testing.T) {
	g := NewGate(nil)

	require.NoError(t, g.Set(nil))
	require.NoError(t, g.Set(Permissive))
	assert.False(t, g.Locked())

	require.NoError(t, g.Set(rejectAll))
	assert.True(t, g.Locked())
}

func TestLockedOverrideIgnoredWithWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, &logging.Config{Level: logging.LevelWarn})

	var hooks []bool
	g := NewGate(nil,
		WithLogger(logger),
		WithChangeHook(func(_ Policy, installed bool) { hooks = append(hooks, installed) }),
	)

	first := BitsOfSecurity{Minimum: 128}
	require.NoError(t, g.Set(first))
	require.NoError(t, g.Set(nil), "a refused override is not an error")

	assert.Equal(t, first, g.Current())
	assert.Contains(t, buf.String(), "attempt to override locked constraints ignored")
	assert.Equal(t, []bool{true, false}, hooks)
}

func TestAllowOverride(t *testing.T) {
	g := NewGate(nil, WithPreconfigured(BitsOfSecurity{Minimum: 128}), WithAllowOverride(true))
	require.True(t, g.Locked())

	require.NoError(t, g.Set(rejectAll))
	require.ErrorIs(t, g.Check(Service{Name: "AES", Bits: 256}), ErrConstraintViolation)

	require.NoError(t, g.Set(nil))
	assert.True(t, IsPermissive(g.Current()))
	assert.True(t, g.Locked(), "lock is sticky once set")

	g.SetAllowOverride(false)
	require.NoError(t, g.Set(rejectAll))
	assert.True(t, IsPermissive(g.Current()))
}

func TestPreconfiguredPermissiveDoesNotLock(t *testing.T) {
	g := NewGate(nil, WithPreconfigured(Permissive))
	assert.False(t, g.Locked())
}

func TestSetRequiresPermission(t *testing.T) {
	g := NewGate(permission.Grant(permission.GlobalConfig))

	err := g.Set(rejectAll)
	require.ErrorIs(t, err, permission.ErrPermissionDenied)
	assert.False(t, g.Locked())
	assert.True(t, IsPermissive(g.Current()))
}

func TestCheckDoesNotMutate(t *testing.T) {
	g := NewGate(nil)
	require.NoError(t, g.Set(rejectAll))

	for i := 0; i < 3; i++ {
		require.Error(t, g.Check(Service{Name: "RC4"}))
	}
	assert.True(t, g.Locked())
	assert.NotNil(t, g.Current())
}

func TestBitsOfSecurityExceptions(t *testing.T) {
	p := BitsOfSecurity{Minimum: 128, Exceptions: []string{"SHA1"}}

	assert.NoError(t, p.Check(Service{Name: "SHA1", Bits: 80}))
	assert.ErrorIs(t, p.Check(Service{Name: "MD5", Bits: 64}), ErrConstraintViolation)
	assert.Equal(t, "bits-of-security(128)", Describe(p))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "permissive", Describe(nil))
	assert.Equal(t, "permissive", Describe(Permissive))
	assert.Equal(t, "constraints.PolicyFunc", Describe(rejectAll))
}

func TestPurposeString(t *testing.T) {
	assert.Equal(t, "signing", PurposeSigning.String())
	assert.Equal(t, "Purpose(42)", Purpose(42).String())
}

func TestConcurrentSetAndCheck(t *testing.T) {
	g := NewGate(nil, WithAllowOverride(true))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(min int) {
			defer wg.Done()
			_ = g.Set(BitsOfSecurity{Minimum: min})
		}(i)
		go func() {
			defer wg.Done()
			_ = g.Check(Service{Name: "AES", Bits: 256})
		}()
	}
	wg.Wait()

	assert.True(t, g.Locked())
}
