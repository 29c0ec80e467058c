package emission

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/emissor-fiscal/internal/application/dto"
	"github.com/jhoicas/emissor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emissor-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/emissor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emissor-fiscal/pkg/sefaz"
	"github.com/rs/zerolog"
)

// VoidUseCase inutilização dos números pulados.
type VoidUseCase struct {
	reservations repository.NumberReservationRepository
	credentials  *Credentials
	client       SigningTransmissionClient
	metrics      Metrics
	log          zerolog.Logger
}

func NewVoidUseCase(reservations repository.NumberReservationRepository, credentials *Credentials, client SigningTransmissionClient, metrics Metrics, log zerolog.Logger) *VoidUseCase {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &VoidUseCase{reservations: reservations, credentials: credentials, client: client, metrics: metrics, log: log}
}

// ListSkipped números pulados ainda não inutilizados.
func (uc *VoidUseCase) ListSkipped(ctx context.Context, issuerID string) ([]dto.SkippedNumberResponse, error) {
	list, err := uc.reservations.ListSkipped(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SkippedNumberResponse, 0, len(list))
	for _, r := range list {
		out = append(out, dto.SkippedNumberResponse{
			ID:            r.ID,
			DocType:       string(r.DocType),
			Series:        r.Series,
			Number:        r.Number,
			Justification: r.Justification,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}

// VoidSkipped agrupa os números pulados em faixas contínuas e envia uma inutilização por faixa.
// Uma faixa rejeitada não impede as demais.
func (uc *VoidUseCase) VoidSkipped(ctx context.Context, issuerID, justification string) ([]dto.VoidResultResponse, error) {
	if err := fiscal.ValidateJustification(justification); err != nil {
		return nil, fiscal.ValidationFailed([]fiscal.FieldError{{Field: "justification", Reason: err.Error()}})
	}
	skipped, err := uc.reservations.ListSkipped(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if len(skipped) == 0 {
		return []dto.VoidResultResponse{}, nil
	}

	profile, err := uc.credentials.Profile(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	cert, err := uc.credentials.Certificate(ctx, profile, time.Now())
	if err != nil {
		return nil, err
	}
	ufCode := sefaz.UFCodes[profile.UF]

	ranges := GroupRanges(skipped)
	results := make([]dto.VoidResultResponse, 0, len(ranges))
	for _, rg := range ranges {
		res := dto.VoidResultResponse{DocType: string(rg.DocType), Series: rg.Series, Year: rg.Year, From: rg.From, To: rg.To}
		route := fiscal.Route{UF: profile.UF, UFCode: ufCode, Model: rg.DocType.Model(), Environment: profile.Environment}
		resp, err := uc.client.Void(ctx, route, fiscal.VoidRequest{
			CNPJ:          sefaz.OnlyDigits(profile.CNPJ),
			Model:         rg.DocType.Model(),
			Series:        rg.Series,
			Year:          rg.Year % 100,
			From:          rg.From,
			To:            rg.To,
			Justification: justification,
		}, cert)
		switch {
		case err != nil:
			res.Status, res.Message = "error", err.Error()
		case resp.Kind == fiscal.ResponseVoided:
			res.Status, res.Protocol, res.AuthorityCode, res.Message = "voided", resp.Protocol, resp.Code, resp.Message
			if mErr := uc.reservations.MarkVoided(ctx, rg.IDs, resp.Protocol); mErr != nil {
				uc.log.Error().Err(mErr).Str("protocolo", resp.Protocol).Msg("inutilização homologada não gravada")
				res.Status, res.Message = "error", mErr.Error()
			} else {
				for range rg.IDs {
					uc.metrics.NumberSettled(rg.DocType, entity.ReservationVoided)
				}
			}
		default:
			res.Status, res.AuthorityCode, res.Message = "rejected", resp.Code, resp.Message
		}
		uc.log.Info().Str("issuer_id", issuerID).Int("serie", rg.Series).Int64("de", rg.From).Int64("ate", rg.To).
			Str("status", res.Status).Str("cstat", res.AuthorityCode).Msg("inutilização de faixa")
		results = append(results, res)
	}
	return results, nil
}

// GroupRanges junta reservas puladas em faixas contínuas por (tipo, série, ano).
func GroupRanges(list []*entity.NumberReservation) []entity.NumberRange {
	sorted := make([]*entity.NumberReservation, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DocType != b.DocType {
			return a.DocType < b.DocType
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		if a.CreatedAt.Year() != b.CreatedAt.Year() {
			return a.CreatedAt.Year() < b.CreatedAt.Year()
		}
		return a.Number < b.Number
	})

	var out []entity.NumberRange
	for _, r := range sorted {
		year := r.CreatedAt.Year()
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.DocType == r.DocType && last.Series == r.Series && last.Year == year && r.Number <= last.To+1 {
				if r.Number > last.To {
					last.To = r.Number
				}
				last.IDs = append(last.IDs, r.ID)
				continue
			}
		}
		out = append(out, entity.NumberRange{
			DocType: r.DocType, Series: r.Series, Year: year, From: r.Number, To: r.Number, IDs: []string{r.ID},
		})
	}
	return out
}
