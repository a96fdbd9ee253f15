package taxclean

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxclean.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
state_file: /var/lib/taxclean/state.jsonl
tax_rate: 30%
tolerance: "0.05"
reconcile_fees: true
timeout: 5s
workers: 8
`)
	t.Setenv("TAXCLEAN_WORKERS", "2")
	t.Setenv("TAXCLEAN_LOG_LEVEL", "debug")
	t.Setenv("TAXCLEAN_LOG_JSON", "true")
	t.Setenv("TAXCLEAN_STATE_FILE", "")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taxclean/state.jsonl", c.StateFile)
	assert.Equal(t, 2, c.Workers, "the environment overrides the file")
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.LogJSON)
	assert.Equal(t, "Israel", c.Jurisdiction)

	rules, err := c.Rules()
	require.NoError(t, err)
	assert.Equal(t, "30%", rules.Rate.String())
	assert.Equal(t, "USD", rules.Currency)

	rec, err := c.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, "0.05", rec.Tolerance.String())
	assert.Len(t, rec.Fields, 2+len(FeeFields))

	d, err := c.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	opts, err := c.Options(zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, name := range []string{"STATE_FILE", "LOG_LEVEL", "TAX_RATE", "TOLERANCE", "TIMEOUT", "WORKERS"} {
		t.Setenv(EnvPrefix+name, "")
	}
	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)

	rules, err := c.Rules()
	require.NoError(t, err)
	assert.True(t, IsraeliRules().Rate.Decimal().Equal(rules.Rate.Decimal()))
	assert.Equal(t, "Israel", rules.Jurisdiction)
	rec, err := c.Reconcile()
	require.NoError(t, err)
	assert.True(t, DefaultTolerance.Equal(rec.Tolerance))
	assert.Equal(t, DefaultReconcileOptions().Fields, rec.Fields)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "could not read config")

	_, err = LoadConfig(writeConfig(t, "workers: [1, 2]"))
	assert.ErrorContains(t, err, "invalid config")

	t.Setenv("TAXCLEAN_WORKERS", "many")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "invalid TAXCLEAN_WORKERS")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"defaults", nil, ""},
		{"percent rate", map[string]string{"TAXCLEAN_TAX_RATE": "12.5%"}, ""},
		{"fraction rate", map[string]string{"TAXCLEAN_TAX_RATE": "0.3"}, ""},
		{"bad rate", map[string]string{"TAXCLEAN_TAX_RATE": "a quarter"}, "invalid tax_rate"},
		{"bad tolerance", map[string]string{"TAXCLEAN_TOLERANCE": "two cents"}, "invalid tolerance"},
		{"negative tolerance", map[string]string{"TAXCLEAN_TOLERANCE": "-0.02"}, "must not be negative"},
		{"bad timeout", map[string]string{"TAXCLEAN_TIMEOUT": "soon"}, "invalid timeout"},
		{"zero timeout", map[string]string{"TAXCLEAN_TIMEOUT": "0s"}, "timeout must be positive"},
		{"negative timeout", map[string]string{"TAXCLEAN_TIMEOUT": "-1s"}, "timeout must be positive"},
		{"bad level", map[string]string{"TAXCLEAN_LOG_LEVEL": "verbose"}, "unknown log level"},
		{"no workers", map[string]string{"TAXCLEAN_WORKERS": "0"}, "workers must be at least 1"},
		{"bad bool", map[string]string{"TAXCLEAN_RECONCILE_FEES": "sometimes"}, "invalid TAXCLEAN_RECONCILE_FEES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			err := c.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			if err == nil {
				err = c.Validate()
			}
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
