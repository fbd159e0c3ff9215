package orders

import "errors"

type Status string

const (
	StatusPending    Status = "Pendente"
	StatusProcessing Status = "Processando"
	StatusDelivered  Status = "Entregue"
	StatusCancelled  Status = "Cancelado"
	StatusDeleted    Status = "Excluído" // soft delete, the "trash"
)

var ErrInvalidStatus = errors.New("invalid order status")

var knownStatus = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusDelivered:  true,
	StatusCancelled:  true,
	StatusDeleted:    true,
}

func (s Status) Valid() bool { return knownStatus[s] }

// Transitions are caller driven: any known status can follow any other,
// including leaving the trash.
func CanTransition(from, to Status) bool {
	return to.Valid()
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "Pendente"
	InstallmentPartial InstallmentStatus = "Parcial"
	InstallmentPaid    InstallmentStatus = "Pago"
)

func DeriveInstallmentStatus(amount, paid float64) InstallmentStatus {
	switch {
	case paid >= amount:
		return InstallmentPaid
	case paid > 0:
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}
