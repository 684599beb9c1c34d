package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "mysql", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "postgres without dsn",
			config:  Config{Backend: BackendPostgres},
			wantErr: ErrDSNRequired,
		},
		{
			name:    "negative batch size",
			config:  Config{Backend: BackendSQLite, Import: ImportConfig{BatchSize: -1}},
			wantErr: ErrBatchSizeInvalid,
		},
		{
			name:    "negative cache capacity",
			config:  Config{Backend: BackendSQLite, Cache: CacheConfig{ObjectCapacity: -5}},
			wantErr: ErrCapacityInvalid,
		},
		{
			name:    "blank missing-value code",
			config:  Config{Backend: BackendSQLite, MvIndicators: []string{"Q", ""}},
			wantErr: ErrMvIndicatorsEmpty,
		},
		{
			name:   "valid sqlite config",
			config: Config{Backend: BackendSQLite, DataDir: "/tmp/data"},
		},
		{
			name:   "valid postgres config",
			config: Config{Backend: BackendPostgres, DSN: "postgres://localhost/ontology"},
		},
		{
			name:   "default config",
			config: DefaultConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Backend: BackendSQLite, Import: ImportConfig{BatchSize: 50}}.WithDefaults()

	assert.Equal(t, 50, cfg.Import.BatchSize, "explicit values are kept")
	assert.Equal(t, DefaultAnalyzeEvery, cfg.Import.AnalyzeEvery)
	assert.Equal(t, DefaultPropertyCacheCapacity, cfg.Cache.PropertyCapacity)
	assert.Equal(t, DefaultDomainCacheCapacity, cfg.Cache.DomainCapacity)
	assert.Equal(t, DefaultObjectCacheCapacity, cfg.Cache.ObjectCapacity)
	assert.Equal(t, DefaultMvIndicators, cfg.MvIndicators)
}
