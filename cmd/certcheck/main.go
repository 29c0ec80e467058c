// certcheck diagnostica um certificado A1 (PKCS#12) antes do upload:
// senha, titular, CNPJ e validade.
//
// Uso: go run ./cmd/certcheck <arquivo.pfx> <senha>
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/jhoicas/emissor-fiscal/pkg/logger"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "uso: certcheck <arquivo.pfx> <senha>")
		os.Exit(2)
	}
	path, passphrase := os.Args[1], os.Args[2]

	log := logger.New(logger.Config{Env: "development", Level: "warn"})

	archive, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("erro de arquivo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("arquivo: %s (%d bytes)\n", path, len(archive))

	client, err := sefaz.NewClient(config.SEFAZConfig{Timeout: 30 * time.Second, MaxAttempts: 1}, log.Zerolog())
	if err != nil {
		fmt.Printf("cliente: %v\n", err)
		os.Exit(1)
	}
	cert, err := client.LoadCertificate(archive, passphrase, time.Now())
	if err != nil {
		fmt.Printf("certificado recusado: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("titular:   %s\n", cert.Subject)
	fmt.Printf("CNPJ:      %s\n", cert.CNPJ)
	fmt.Printf("válido de: %s\n", cert.NotBefore.Format(time.DateOnly))
	fmt.Printf("válido até: %s", cert.NotAfter.Format(time.DateOnly))
	if days := int(time.Until(cert.NotAfter).Hours() / 24); days <= 30 {
		fmt.Printf(" (vence em %d dias)", days)
	}
	fmt.Println()
}
