package entity

import "time"

// NumberSequence contador por (emitente, tipo, série). NextNumber é o próximo a ser entregue.
type NumberSequence struct {
	IssuerID   string
	DocType    DocumentType
	Series     int
	NextNumber int64
	MaxNumber  int64
	UpdatedAt  time.Time
}

// ReservationStatus situação de um número reservado.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"  // em uso por uma emissão em andamento
	ReservationCommitted ReservationStatus = "committed" // consumido por documento autorizado/denegado
	ReservationReleased  ReservationStatus = "released"  // devolvido ao contador, será reutilizado
	ReservationSkipped   ReservationStatus = "skipped"   // pulado com justificativa, aguarda inutilização
	ReservationVoided    ReservationStatus = "voided"    // inutilização homologada
)

// NumberReservation reserva de (emitente, tipo, série, número).
type NumberReservation struct {
	ID            string
	IssuerID      string
	DocType       DocumentType
	Series        int
	Number        int64
	DocumentID    string
	Status        ReservationStatus
	Justification string
	VoidProtocol  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NumberRange faixa contínua de números pulados (inutilização).
type NumberRange struct {
	DocType DocumentType
	Series  int
	Year    int
	From    int64
	To      int64
	IDs     []string
}
