package httppolling

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBasicAuth(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		user     string
		pass     string
		expected string
	}{
		{
			name:     "no query string",
			base:     "http://host:80/api",
			user:     "u",
			pass:     "p",
			expected: "http://host:80/api?authUsername=u&authPassword=p&authMethod=Basic&authenticationPreemptive=true",
		},
		{
			name:     "existing query string",
			base:     "http://host:80/api?x=1",
			user:     "u",
			pass:     "p",
			expected: "http://host:80/api?x=1&authUsername=u&authPassword=p&authMethod=Basic&authenticationPreemptive=true",
		},
		{
			name:     "missing password",
			base:     "http://host:80/api",
			user:     "u",
			expected: "http://host:80/api",
		},
		{
			name:     "missing username",
			base:     "http://host:80/api?x=1",
			pass:     "p",
			expected: "http://host:80/api?x=1",
		},
		{
			name:     "no credentials",
			base:     "http://host:80/api",
			expected: "http://host:80/api",
		},
		{
			name:     "reserved characters are escaped",
			base:     "http://host/api",
			user:     "op&erator",
			pass:     "p@ss=word",
			expected: "http://host/api?authUsername=op%26erator&authPassword=p%40ss%3Dword&authMethod=Basic&authenticationPreemptive=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WithBasicAuth(tt.base, tt.user, tt.pass))
		})
	}
}

func TestWithBasicAuthParamsAppearOnce(t *testing.T) {
	for _, base := range []string{"http://h/a", "http://h/a?x=1", "http://h/a?x=1&y=2"} {
		built := WithBasicAuth(base, "user", "secret")
		for _, p := range []string{ParamUsername, ParamPassword, ParamMethod, ParamPreemptive} {
			assert.Equal(t, 1, strings.Count(built, p+"="), "%s in %s", p, built)
		}
		assert.Equal(t, 1, strings.Count(built, "?"))

		u, err := url.Parse(built)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "user", q.Get(ParamUsername))
		assert.Equal(t, "secret", q.Get(ParamPassword))
		assert.Equal(t, "Basic", q.Get(ParamMethod))
		assert.Equal(t, "true", q.Get(ParamPreemptive))
	}
}

func TestConfigConnectionURIIsDeterministic(t *testing.T) {
	cfg := Config{ServerURL: "http://host:80/api", AuthUsername: "u", AuthPassword: "p"}
	assert.Equal(t, cfg.ConnectionURI(), cfg.ConnectionURI())
}

func TestBaseAddressFillsPort(t *testing.T) {
	cfg := Config{ServerURL: "http://plc.local/values", ServerPort: 8080}
	assert.Equal(t, "http://plc.local:8080/values", cfg.BaseAddress())

	cfg = Config{ServerURL: "http://plc.local:9000/values", ServerPort: 8080}
	assert.Equal(t, "http://plc.local:9000/values", cfg.BaseAddress())

	cfg = Config{ServerURL: "http://plc.local/values"}
	assert.Equal(t, "http://plc.local/values", cfg.BaseAddress())
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{ServerURL: "http://localhost:8080/api"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	bad := Config{ServerURL: "opc.tcp://localhost:4840"}
	bad.ApplyDefaults()
	require.Error(t, bad.Validate())

	empty := Config{}
	empty.ApplyDefaults()
	require.Error(t, empty.Validate())
}
