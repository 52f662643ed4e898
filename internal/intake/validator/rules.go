package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate runs the Level-1/2 declarative rules, expressed as
// go-playground/validator struct-tag structs per entity kind — carried over
// from the jordigilh-kubernaut member of the pack, which leans on
// go-playground/validator/v10 for its own struct-tag validation, composed
// here with the hand-written cross-row checks validator tags cannot express
// (household age-bucket sums, intra-batch FK resolution).
var validate = validator.New(validator.WithRequiredStructEnabled())

// buildingFields is the Level-1/2 shape of a staged Building row.
type buildingFields struct {
	BuildingCode string `validate:"required,len=17,numeric"`
	Governorate  string `validate:"required,max=100"`
	District     string `validate:"required,max=100"`
}

// propertyUnitFields is the Level-1/2 shape of a staged PropertyUnit row.
type propertyUnitFields struct {
	UnitIdentifier string `validate:"required,max=64"`
	FloorNumber    int    `validate:"gte=-5,lte=200"`
	AreaSquareMeters float64 `validate:"gt=0"`
}

// personFields is the Level-1/2 shape of a staged Person row.
type personFields struct {
	FirstNameArabic  string `validate:"required,max=100"`
	FatherNameArabic string `validate:"required,max=100"`
	FamilyNameArabic string `validate:"required,max=100"`
	NationalID       string `validate:"omitempty,max=20"`
	Gender           string `validate:"required,oneof=Male Female"`
	DateOfBirth      string `validate:"required,datetime=2006-01-02"`
}

// householdFields is the Level-1/2 shape of a staged Household row.
type householdFields struct {
	HouseholdSize  int `validate:"gte=1,lte=50"`
	InfantCount    int `validate:"gte=0"`
	ChildCount     int `validate:"gte=0"`
	AdultCount     int `validate:"gte=0"`
	ElderlyCount   int `validate:"gte=0"`
}

// claimFields is the Level-1/2 shape of a staged Claim row.
type claimFields struct {
	ClaimType   string `validate:"required,max=50"`
	TenureType  string `validate:"required,max=50"`
	SubmittedAt string `validate:"required,datetime=2006-01-02"`
}

// personPropertyRelationFields is the Level-1/2 shape of a staged
// PersonPropertyRelation row.
type personPropertyRelationFields struct {
	RelationType          string  `validate:"required,max=50"`
	OwnershipSharePercent float64 `validate:"gte=0,lte=100"`
}

// validateStruct runs go-playground/validator against v and returns one
// Diagnostic per failed field, all at the given level with Blocking
// severity (spec.md §4.3: a Level-1/2 structural or semantic failure is
// blocking).
func validateStruct(v any, level int) []diagnosticDraft {
	if err := validate.Struct(v); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []diagnosticDraft{{
				code:    fmt.Sprintf("VAL-L%d-INTERNAL", level),
				path:    "",
				message: err.Error(),
			}}
		}
		drafts := make([]diagnosticDraft, 0, len(verrs))
		for _, fe := range verrs {
			drafts = append(drafts, diagnosticDraft{
				code:    fmt.Sprintf("VAL-L%d-%s-%s", level, fe.StructField(), fe.Tag()),
				path:    fe.StructField(),
				message: fmt.Sprintf("%s failed rule %q", fe.StructField(), fe.Tag()),
			})
		}
		return drafts
	}
	return nil
}

// diagnosticDraft is a diagnostic before severity/level are finalized by the
// caller.
type diagnosticDraft struct {
	code    string
	path    string
	message string
}
