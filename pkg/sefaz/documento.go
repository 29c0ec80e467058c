package sefaz

import (
	"fmt"
	"unicode"
)

var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida os dois dígitos verificadores do CNPJ (com ou sem máscara).
func ValidateCNPJ(cnpj string) error {
	d := OnlyDigits(cnpj)
	if len(d) != 14 {
		return fmt.Errorf("sefaz: CNPJ deve ter 14 dígitos, encontrados %d", len(d))
	}
	if repeated(d) {
		return fmt.Errorf("sefaz: CNPJ inválido")
	}
	if cnpjDigit(d[:12], cnpjWeights1[:]) != int(d[12]-'0') ||
		cnpjDigit(d[:13], cnpjWeights2[:]) != int(d[13]-'0') {
		return fmt.Errorf("sefaz: dígito verificador do CNPJ inválido")
	}
	return nil
}

// ValidateCPF valida os dois dígitos verificadores do CPF.
func ValidateCPF(cpf string) error {
	d := OnlyDigits(cpf)
	if len(d) != 11 {
		return fmt.Errorf("sefaz: CPF deve ter 11 dígitos, encontrados %d", len(d))
	}
	if repeated(d) {
		return fmt.Errorf("sefaz: CPF inválido")
	}
	if cpfDigit(d[:9]) != int(d[9]-'0') || cpfDigit(d[:10]) != int(d[10]-'0') {
		return fmt.Errorf("sefaz: dígito verificador do CPF inválido")
	}
	return nil
}

// ValidateTaxID aceita CPF (11 dígitos) ou CNPJ (14 dígitos).
func ValidateTaxID(doc string) error {
	switch len(OnlyDigits(doc)) {
	case 11:
		return ValidateCPF(doc)
	case 14:
		return ValidateCNPJ(doc)
	default:
		return fmt.Errorf("sefaz: documento deve ser CPF (11 dígitos) ou CNPJ (14 dígitos)")
	}
}

// IsCPF indica se o documento, sem máscara, tem tamanho de CPF.
func IsCPF(doc string) bool {
	return len(OnlyDigits(doc)) == 11
}

func cnpjDigit(base string, weights []int) int {
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func cpfDigit(base string) int {
	sum := 0
	weight := len(base) + 1
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weight
		weight--
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}

func repeated(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}

// OnlyDigits remove máscara (pontos, barras, hífens).
func OnlyDigits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < 128 {
			out = append(out, r)
		}
	}
	return string(out)
}
