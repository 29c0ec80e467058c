package entity

// Municipality município da tabela IBGE.
type Municipality struct {
	Code string // 7 dígitos
	Name string
	UF   string
}
