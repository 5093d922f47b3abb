package configuration_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukinix/nixos-flake-up/pkg/configuration"
	"github.com/yukinix/nixos-flake-up/test/generators"
	"pgregory.net/rapid"
)

func TestValidateHostname(t *testing.T) {
	testcases := []struct {
		input   string
		wantErr error
	}{
		{input: "yuki"},
		{input: "minimal"},
		{input: "host-01"},
		{input: "A"},
		{input: "9front"},
		{input: strings.Repeat("a", 63)},
		{input: "", wantErr: configuration.ErrHostnameEmpty},
		{input: strings.Repeat("a", 64), wantErr: configuration.ErrHostnameTooLong},
		{input: "SKIP_DRM_DETECTION=1", wantErr: configuration.ErrHostnameEquals},
		{input: "a=b", wantErr: configuration.ErrHostnameEquals},
		{input: "-leading", wantErr: configuration.ErrHostnameFormat},
		{input: "trailing-", wantErr: configuration.ErrHostnameFormat},
		{input: "under_score", wantErr: configuration.ErrHostnameFormat},
		{input: "white space", wantErr: configuration.ErrHostnameFormat},
	}

	for _, tc := range testcases {
		t.Run(tc.input, func(t *testing.T) {
			err := configuration.ValidateHostname(tc.input)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateHostname_AcceptsWellFormed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hostname := generators.HostnameGen().Draw(t, "Hostname").(string)

		require.NoError(t, configuration.ValidateHostname(hostname))
	})
}

func TestValidateHostname_RejectsEquals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z_]+=[0-9A-Za-z]*`).Draw(t, "Assignment").(string)

		err := configuration.ValidateHostname(s)

		require.Error(t, err)
		require.True(t, errors.Is(err, configuration.ErrHostnameEquals))
	})
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, configuration.Minimal, configuration.KindFor("minimal"))
	assert.Equal(t, configuration.Full, configuration.KindFor("yuki"))
	assert.Equal(t, configuration.Full, configuration.KindFor("minimal2"))
}

func TestKindFor_OnlyMinimalIsMinimal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hostname := generators.HostnameGen().Filter(func(s string) bool {
			return s != "minimal"
		}).Draw(t, "Hostname").(string)

		require.Equal(t, configuration.Full, configuration.KindFor(hostname))
	})
}
