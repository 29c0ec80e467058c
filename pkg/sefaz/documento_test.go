package sefaz_test

import (
	"testing"

	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/stretchr/testify/assert"
)

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, sefaz.ValidateCNPJ("11.222.333/0001-81"))
	assert.NoError(t, sefaz.ValidateCNPJ(testCNPJ))
	assert.Error(t, sefaz.ValidateCNPJ("11222333000182"), "DV errado")
	assert.Error(t, sefaz.ValidateCNPJ("11111111111111"), "dígitos repetidos")
	assert.Error(t, sefaz.ValidateCNPJ("1122233300018"), "tamanho")
}

func TestValidateCPF(t *testing.T) {
	assert.NoError(t, sefaz.ValidateCPF("529.982.247-25"))
	assert.Error(t, sefaz.ValidateCPF("52998224724"))
	assert.Error(t, sefaz.ValidateCPF("00000000000"))
}

func TestValidateTaxID(t *testing.T) {
	assert.NoError(t, sefaz.ValidateTaxID("52998224725"))
	assert.NoError(t, sefaz.ValidateTaxID(testCNPJ))
	assert.Error(t, sefaz.ValidateTaxID("1234"))
	assert.True(t, sefaz.IsCPF("529.982.247-25"))
	assert.False(t, sefaz.IsCPF(testCNPJ))
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "11222333000181", sefaz.OnlyDigits("11.222.333/0001-81"))
	assert.Equal(t, "", sefaz.OnlyDigits("abc"))
}
