package permission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGrantAndRevoke(t *testing.T) {
	s := Grant(GlobalConfig)

	require.NoError(t, s.Check(GlobalConfig))

	err := s.Check(Constraints)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Contains(t, err.Error(), "constraints")

	s.Allow(Constraints)
	assert.NoError(t, s.Check(Constraints))

	s.Revoke(GlobalConfig)
	assert.ErrorIs(t, s.Check(GlobalConfig), ErrPermissionDenied)
}

func TestRequireNilChecker(t *testing.T) {
	for _, p := range All() {
		assert.NoError(t, Require(nil, p))
		assert.NoError(t, Require(AllowAll{}, p))
	}
}

func TestCheckerFunc(t *testing.T) {
	var seen []Permission
	c := CheckerFunc(func(p Permission) error {
		seen = append(seen, p)
		if p == DefaultRandom {
			return ErrPermissionDenied
		}
		return nil
	})

	assert.NoError(t, Require(c, ThreadLocalConfig))
	assert.ErrorIs(t, Require(c, DefaultRandom), ErrPermissionDenied)
	assert.Equal(t, []Permission{ThreadLocalConfig, DefaultRandom}, seen)
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "globalConfig", GlobalConfig.String())
	assert.Equal(t, "Permission(42)", Permission(42).String())
}
