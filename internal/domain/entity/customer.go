package entity

import "time"

// Customer cliente (destinatário) com CPF ou CNPJ.
type Customer struct {
	ID                string
	IssuerID          string
	Name              string
	Document          string // CPF (11) ou CNPJ (14)
	StateRegistration string
	Email             string
	Phone             string
	Street            string
	StreetNumber      string
	District          string
	City              string
	CityCode          string
	UF                string
	ZipCode           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasAddress indica endereço completo para o grupo enderDest.
func (c *Customer) HasAddress() bool {
	return c.Street != "" && c.StreetNumber != "" && c.District != "" &&
		c.City != "" && c.CityCode != "" && c.UF != ""
}
