package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	ErrNotFound            = "NOT_FOUND"
	ErrInvalidTransition   = "INVALID_TRANSITION"
	ErrUnauthorized        = "UNAUTHORIZED"
	ErrForbidden           = "FORBIDDEN"
	ErrConflict            = "CONFLICT"
	ErrConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrValidation          = "VALIDATION"
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrInternal            = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func Wrap(code, msg string, err error) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var de *DomainError
	return stderrors.As(err, &de) && de.Code == code
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewInvalidTransition(from, to string) *DomainError {
	return &DomainError{Code: ErrInvalidTransition, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewForbidden(msg string) *DomainError {
	return &DomainError{Code: ErrForbidden, Message: msg}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewConcurrencyConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConcurrencyConflict, Message: msg}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewUpstreamUnavailable(msg string, err error) *DomainError {
	return &DomainError{Code: ErrUpstreamUnavailable, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// --- Health post ---

func HealthPostNotFound(id string) *DomainError {
	return NewNotFound("health post", id)
}

func AddressNotFound(address string) *DomainError {
	return NewValidation(fmt.Sprintf("address %q could not be geocoded", address))
}

func ImpreciseAddress(address string) *DomainError {
	return NewValidation(fmt.Sprintf("address %q only resolved to an area, not a street-level location", address))
}

func NoHubAssigned(externalID string) *DomainError {
	return NewValidation(fmt.Sprintf("health post %s has no logistics hub assigned", externalID))
}

// --- Hub ---

func HubNotFound(id string) *DomainError {
	return NewNotFound("hub", id)
}

func UsernameTaken(username string) *DomainError {
	return NewConflict(fmt.Sprintf("username %s is already registered", username))
}

func InvalidCredentials() *DomainError {
	return NewUnauthorized("invalid username or password")
}

func SKUNotStocked(sku string) *DomainError {
	return NewConflict(fmt.Sprintf("item sku %s is not stocked at this hub", sku))
}

func InsufficientStock(sku string) *DomainError {
	return NewConflict(fmt.Sprintf("insufficient stock for sku %s", sku))
}

func StockChanged(sku string) *DomainError {
	return NewConcurrencyConflict(fmt.Sprintf("stock for sku %s changed, please retry", sku))
}

// --- Driver ---

func DriverNotFound(id string) *DomainError {
	return NewNotFound("driver", id)
}

func DriverBusy(name string) *DomainError {
	return NewConflict(fmt.Sprintf("driver %s is currently ON_DELIVERY", name))
}

func DriverOffDuty(name string) *DomainError {
	return NewConflict(fmt.Sprintf("driver %s is OFF_DUTY", name))
}

// --- Shipment ---

func ShipmentNotFound(id string) *DomainError {
	return NewNotFound("shipment", id)
}

func ShipmentNotOwned() *DomainError {
	return NewForbidden("shipment belongs to another hub")
}

func ShipmentAlreadyProcessed(status string) *DomainError {
	return NewConflict(fmt.Sprintf("shipment is already %s", status))
}

func ShipmentChanged(id string) *DomainError {
	return NewConcurrencyConflict(fmt.Sprintf("shipment %s changed concurrently, please retry", id))
}
