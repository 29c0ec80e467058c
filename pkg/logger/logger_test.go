package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jhoicas/emissor-fiscal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONComComponente(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Env: "production", Level: "debug", Out: &buf})

	zl := l.Component("emissao")
	zl.Info().Str("document_id", "d1").Msg("autorizada")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "emissao", line["component"])
	assert.Equal(t, "d1", line["document_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_NivelFiltra(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Env: "production", Level: "warn", Out: &buf})
	l.Info().Msg("ignorada")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("registrada")
	assert.NotZero(t, buf.Len())
}
