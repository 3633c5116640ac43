package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "sub", "olia.json")

	require.Nil(t, WriteFile(name, []byte("olia")))

	b, err := os.ReadFile(name)
	require.Nil(t, err)
	assert.Equal(t, "olia", string(b))
	assert.True(t, FileExists(name))
	assert.False(t, FileExists(filepath.Join(dir, "sub")))
	assert.False(t, FileExists(filepath.Join(dir, "none")))
}

func TestResultFileName(t *testing.T) {
	tests := []struct {
		name  string
		audio string
		want  string
	}{
		{name: "OK", audio: "olia.mp3", want: "out/olia.json"},
		{name: "Path", audio: "/in/a/olia.wav", want: "out/olia.json"},
		{name: "Space", audio: "olia tata.m4a", want: "out/olia_tata.json"},
		{name: "No ext", audio: "olia", want: "out/olia.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultFileName("out", tt.audio))
		})
	}
}
