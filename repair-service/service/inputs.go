package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"fadedreams/repairshop/repair-service/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// money fields are checked with numeric tags such as gte=0
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validateInput runs the struct tags of in and reports every violation as
// one ValidationError
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ValidationError("invalid input: %v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return domain.ValidationError("%s", strings.Join(msgs, "; "))
}

// CreateRepairInput is the body of a new repair request
type CreateRepairInput struct {
	CarID         string          `json:"carId" validate:"required"`
	WorkshopID    string          `json:"workshopId"`
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description" validate:"required"`
	ServiceType   string          `json:"serviceType"`
	RequestedDate *time.Time      `json:"requestedDate"`
	Priority      domain.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type PartInput struct {
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gte=0"`
}

type CostInput struct {
	Parts []PartInput     `json:"parts" validate:"dive"`
	Labor decimal.Decimal `json:"labor" validate:"gte=0"`
}

// AddIterationInput is one recorded unit of work. RequestStatus optionally
// moves the parent request in the same write.
type AddIterationInput struct {
	Description   string                 `json:"description" validate:"required"`
	MechanicNotes string                 `json:"mechanicNotes"`
	Status        domain.IterationStatus `json:"status" validate:"required,oneof=pending in-progress completed cancelled"`
	Cost          *CostInput             `json:"cost"`
	Images        []string               `json:"images" validate:"omitempty,dive,required"`
	RequestStatus domain.RepairStatus    `json:"requestStatus" validate:"omitempty,oneof=pending assigned in-progress completed cancelled"`
}

func (in AddIterationInput) iteration(mechanicID string) domain.Iteration {
	it := domain.Iteration{
		Description:   in.Description,
		MechanicNotes: in.MechanicNotes,
		Status:        in.Status,
		MechanicID:    mechanicID,
		Images:        in.Images,
	}
	if in.Cost != nil {
		cost := &domain.IterationCost{Labor: in.Cost.Labor}
		for _, p := range in.Cost.Parts {
			cost.Parts = append(cost.Parts, domain.Part{Name: p.Name, Price: p.Price, Quantity: p.Quantity})
		}
		it.Cost = cost
	}
	return it
}

// UpdateRepairInput carries a partial update; nil fields are left alone
type UpdateRepairInput struct {
	Title                   *string              `json:"title" validate:"omitnil,min=1,max=200"`
	Description             *string              `json:"description" validate:"omitnil,min=1"`
	Priority                *domain.Priority     `json:"priority" validate:"omitnil,oneof=low medium high"`
	Status                  *domain.RepairStatus `json:"status" validate:"omitnil,oneof=pending assigned in-progress completed cancelled"`
	EstimatedCompletionDate *time.Time           `json:"estimatedCompletionDate"`
}

func (in UpdateRepairInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Priority == nil &&
		in.Status == nil && in.EstimatedCompletionDate == nil
}

func (in UpdateRepairInput) editsDetails() bool {
	return in.Title != nil || in.Description != nil || in.Priority != nil
}

type AssignInput struct {
	MechanicID string `json:"mechanicId" validate:"required"`
}

type CreateCarInput struct {
	Make         string `json:"make" validate:"required"`
	Model        string `json:"model" validate:"required"`
	Year         int    `json:"year" validate:"required,gte=1886,lte=2100"`
	LicensePlate string `json:"licensePlate" validate:"required"`
	VIN          string `json:"vin" validate:"omitempty,len=17"`
}

type CreateWorkshopInput struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type WorkshopMechanicInput struct {
	MechanicID string `json:"mechanicId" validate:"required"`
}
