// Chave de acesso de 44 dígitos (MOC 4.00, item 2.2.6).

package sefaz

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// AccessKeyLength tamanho da chave de acesso.
const AccessKeyLength = 44

// EmissionNormal tpEmis de emissão normal (online).
const EmissionNormal = "1"

// AccessKeyParams campos que compõem a chave, na ordem do leiaute.
type AccessKeyParams struct {
	UFCode       string    // cUF, 2 dígitos IBGE
	IssuedAt     time.Time // AAMM da emissão
	CNPJ         string    // emitente, 14 dígitos
	Model        string    // 55 ou 65
	Series       int       // 0-999
	Number       int64     // 1-999.999.999
	EmissionType string    // tpEmis
	NumericCode  string    // cNF, 8 dígitos
}

// AccessKeyParts chave decomposta.
type AccessKeyParts struct {
	UFCode       string
	YearMonth    string
	CNPJ         string
	Model        string
	Series       int
	Number       int64
	EmissionType string
	NumericCode  string
	CheckDigit   int
}

// BuildAccessKey monta a chave de 44 dígitos com o dígito verificador.
func BuildAccessKey(p AccessKeyParams) (string, error) {
	if len(p.UFCode) != 2 || !allDigits(p.UFCode) {
		return "", fmt.Errorf("sefaz: cUF inválido %q", p.UFCode)
	}
	cnpj := OnlyDigits(p.CNPJ)
	if len(cnpj) != 14 {
		return "", fmt.Errorf("sefaz: CNPJ do emitente deve ter 14 dígitos")
	}
	if p.Model != ModelNFe && p.Model != ModelNFCe {
		return "", fmt.Errorf("sefaz: modelo inválido %q", p.Model)
	}
	if p.Series < 0 || p.Series > 999 {
		return "", fmt.Errorf("sefaz: série fora do intervalo: %d", p.Series)
	}
	if p.Number < 1 || p.Number > MaxNumber {
		return "", fmt.Errorf("sefaz: número fora do intervalo: %d", p.Number)
	}
	tpEmis := p.EmissionType
	if tpEmis == "" {
		tpEmis = EmissionNormal
	}
	if len(p.NumericCode) != 8 || !allDigits(p.NumericCode) {
		return "", fmt.Errorf("sefaz: cNF deve ter 8 dígitos")
	}

	base := fmt.Sprintf("%s%s%s%s%03d%09d%s%s",
		p.UFCode, p.IssuedAt.Format("0601"), cnpj, p.Model, p.Series, p.Number, tpEmis, p.NumericCode)
	return base + strconv.Itoa(CheckDigit(base)), nil
}

// CheckDigit calcula o DV módulo 11 (pesos 2 a 9 da direita para a esquerda).
func CheckDigit(digits string) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// ParseAccessKey valida e decompõe a chave.
func ParseAccessKey(key string) (*AccessKeyParts, error) {
	if len(key) != AccessKeyLength || !allDigits(key) {
		return nil, fmt.Errorf("sefaz: chave de acesso deve ter 44 dígitos")
	}
	dv := int(key[43] - '0')
	if CheckDigit(key[:43]) != dv {
		return nil, fmt.Errorf("sefaz: dígito verificador da chave inválido")
	}
	series, _ := strconv.Atoi(key[22:25])
	number, _ := strconv.ParseInt(key[25:34], 10, 64)
	return &AccessKeyParts{
		UFCode:       key[0:2],
		YearMonth:    key[2:6],
		CNPJ:         key[6:20],
		Model:        key[20:22],
		Series:       series,
		Number:       number,
		EmissionType: key[34:35],
		NumericCode:  key[35:43],
		CheckDigit:   dv,
	}, nil
}

// NewNumericCode sorteia o cNF. A SEFAZ rejeita cNF igual ao nNF.
func NewNumericCode(number int64) (string, error) {
	forbidden := fmt.Sprintf("%08d", number%100_000_000)
	limit := big.NewInt(100_000_000)
	for {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("sefaz: sortear cNF: %w", err)
		}
		code := fmt.Sprintf("%08d", n.Int64())
		if code != forbidden && code != "00000000" {
			return code, nil
		}
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
