// seed_municipios carrega a tabela de municípios do IBGE (DTB) na tabela municipalities,
// usada na validação do endereço do emitente.
//
// Uso: go run ./cmd/seed_municipios [caminho/RELATORIO_DTB_BRASIL_MUNICIPIO.csv]
// O CSV oficial vem em ISO-8859-1 separado por ';'. Colunas lidas pelo cabeçalho:
// UF (cUF numérico ou sigla), Código Município Completo e Nome_Município.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
	"github.com/jhoicas/emissor-fiscal/pkg/logger"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const batchSize = 500

func main() {
	csvPath := "RELATORIO_DTB_BRASIL_MUNICIPIO.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carregar configuração: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", csvPath).Msg("abrir CSV")
	}
	defer f.Close()

	list, err := parseMunicipalities(f)
	if err != nil {
		log.Fatal().Err(err).Msg("ler CSV")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()
	if cfg.DB.Migrate {
		if err := postgres.RunMigrations(pool); err != nil {
			log.Fatal().Err(err).Msg("migrações")
		}
	}

	repo := postgres.NewMunicipalityRepository(pool)
	for start := 0; start < len(list); start += batchSize {
		end := min(start+batchSize, len(list))
		if err := repo.UpsertBatch(ctx, list[start:end]); err != nil {
			log.Fatal().Err(err).Int("offset", start).Msg("gravar municípios")
		}
	}
	log.Info().Int("municipios", len(list)).Msg("tabela IBGE carregada")
}

// parseMunicipalities lê o CSV da DTB. Arquivos já em UTF-8 também são aceitos.
func parseMunicipalities(r io.Reader) ([]entity.Municipality, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var text io.Reader = strings.NewReader(string(raw))
	if !utf8.Valid(raw) {
		text = transform.NewReader(strings.NewReader(string(raw)), charmap.ISO8859_1.NewDecoder())
	}

	cr := csv.NewReader(text)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cabeçalho: %w", err)
	}
	ufCol, codeCol, nameCol := -1, -1, -1
	for i, h := range header {
		switch normalizeHeader(h) {
		case "uf":
			ufCol = i
		case "codigo municipio completo", "codigo_municipio_completo", "codigo":
			codeCol = i
		case "nome_municipio", "nome municipio", "nome":
			nameCol = i
		}
	}
	if ufCol < 0 || codeCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("colunas UF, Código Município Completo e Nome_Município obrigatórias")
	}

	var list []entity.Municipality
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= max(ufCol, codeCol, nameCol) {
			continue
		}
		code := sefaz.OnlyDigits(rec[codeCol])
		name := strings.TrimSpace(rec[nameCol])
		if len(code) != 7 || name == "" {
			continue
		}
		uf := strings.ToUpper(strings.TrimSpace(rec[ufCol]))
		if sigla, ok := sefaz.UFByCode(uf); ok {
			uf = sigla
		}
		if _, ok := sefaz.UFCodes[uf]; !ok {
			continue
		}
		list = append(list, entity.Municipality{Code: code, Name: name, UF: uf})
	}
	return list, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer("ó", "o", "í", "i", "ú", "u", "ã", "a").Replace(h)
}
