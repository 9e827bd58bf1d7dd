package tenant

import (
	"regexp"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	domain, err := Normalize("  nonprod.foobar.onglueops.rocks \n")
	require.NoError(t, err)
	assert.Equal(t, "nonprod.foobar.onglueops.rocks", domain)

	_, err = Normalize("   ")
	require.Error(t, err)
	assert.True(t, trace.IsBadParameter(err))

	_, err = Normalize("nonprod foo.rocks")
	require.Error(t, err)
	assert.True(t, trace.IsBadParameter(err))
}

func TestEnvironmentName(t *testing.T) {
	assert.Equal(t, "nonprod", EnvironmentName("nonprod.antoniostaqueria.onglueops.com"))
	assert.Equal(t, "single", EnvironmentName("single"))
	assert.Equal(t, "", EnvironmentName(""))
}

func TestCompliantName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"domain", "nonprod.foobar.onglueops.rocks", "nonprodfoobaronglueopsrocks"},
		{"uppercase", "NonProd.FOO.rocks", "nonprodfoorocks"},
		{"hyphens kept", "dev-1.example-tenant.io", "dev-1example-tenantio"},
		{"trim hyphens", "--abc--", "abc"},
		{"underscores dropped", "a_b_c", "abc"},
		{"empty", "", DefaultCompliantName},
		{"only invalid", "...___", DefaultCompliantName},
		{"only hyphens", "----", DefaultCompliantName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CompliantName(tt.input))
		})
	}
}

func TestCompliantNameProperties(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

	inputs := []string{
		"nonprod.foobar.onglueops.rocks",
		"-X-",
		"UPPER.lower.123",
		"ünïcödé.tenant",
		"a",
		"!!!",
		"-",
		"trailing.-",
		"9lives.example",
	}

	for _, input := range inputs {
		first := CompliantName(input)
		second := CompliantName(input)

		assert.Equal(t, first, second, "derivation must be deterministic for %q", input)
		assert.True(t, first == DefaultCompliantName || valid.MatchString(first),
			"%q produced non-compliant %q", input, first)
	}
}
