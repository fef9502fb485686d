package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dohtun.log")

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "no writer",
			config:  Config{Level: 0},
			wantErr: true,
		},
		{
			name: "file json",
			config: Config{
				File:       file,
				Level:      -1,
				MaxAge:     1,
				MaxSize:    1,
				MaxBackups: 1,
				JsonFormat: true,
			},
		},
		{
			name:   "stdout bad level",
			config: Config{STDOUT: true, Level: 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			Sugar.Infof("zap log success %t %d", true, 1)
			Sugar.Infow("zap log", "success", true)
			Sync()
		})
	}

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"M":"zap log success true 1"`)
}
