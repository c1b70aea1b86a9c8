package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "separate value",
			args:         []string{"-c", "conf.json", "-a", "http://localhost"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "equals form",
			args:         []string{"--config=alt.json", "-s", "5"},
			allowedFlags: []string{"--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-x", "-a", "http://h"},
			allowedFlags: []string{"-x", "-a"},
			want:         []string{"-x", "-a", "http://h"},
		},
		{
			name:         "unknown flags dropped",
			args:         []string{"-q", "1", "positional"},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
		{
			name:         "repeated flag kept in order",
			args:         []string{"-s", "1", "-s", "2"},
			allowedFlags: []string{"-s"},
			want:         []string{"-s", "1", "-s", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigAndEnvFilePath(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"podesk", "-c", "/etc/podesk.json", "-a", "http://h", "-env", "/etc/podesk.env"}
	assert.Equal(t, "/etc/podesk.json", ConfigFilePath())
	assert.Equal(t, "/etc/podesk.env", EnvFilePath())

	os.Args = []string{"podesk", "--config=/a.json", "-config", "/b.json"}
	assert.Equal(t, "/b.json", ConfigFilePath())
	assert.Empty(t, EnvFilePath())
}
