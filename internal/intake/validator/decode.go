package validator

import "github.com/landtenure/intake/internal/intake/model"

func str(f map[string]any, key string) string {
	v, _ := f[key].(string)
	return v
}

func fint(f map[string]any, key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func ffloat(f map[string]any, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func decodeStructural(kind model.EntityKind, f map[string]any) any {
	switch kind {
	case model.EntityBuilding:
		return buildingFields{
			BuildingCode: str(f, "BuildingCode"),
			Governorate:  str(f, "Governorate"),
			District:     str(f, "District"),
		}
	case model.EntityPropertyUnit:
		return propertyUnitFields{
			UnitIdentifier:   str(f, "UnitIdentifier"),
			FloorNumber:      fint(f, "FloorNumber"),
			AreaSquareMeters: ffloat(f, "AreaSquareMeters"),
		}
	case model.EntityPerson:
		return personFields{
			FirstNameArabic:  str(f, "FirstNameArabic"),
			FatherNameArabic: str(f, "FatherNameArabic"),
			FamilyNameArabic: str(f, "FamilyNameArabic"),
			NationalID:       str(f, "NationalID"),
			Gender:           str(f, "Gender"),
			DateOfBirth:      str(f, "DateOfBirth"),
		}
	case model.EntityHousehold:
		return householdFields{
			HouseholdSize: fint(f, "HouseholdSize"),
			InfantCount:   fint(f, "InfantCount"),
			ChildCount:    fint(f, "ChildCount"),
			AdultCount:    fint(f, "AdultCount"),
			ElderlyCount:  fint(f, "ElderlyCount"),
		}
	case model.EntityClaim:
		return claimFields{
			ClaimType:   str(f, "ClaimType"),
			TenureType:  str(f, "TenureType"),
			SubmittedAt: str(f, "SubmittedAt"),
		}
	case model.EntityPersonPropertyRelation:
		return personPropertyRelationFields{
			RelationType:          str(f, "RelationType"),
			OwnershipSharePercent: ffloat(f, "OwnershipSharePercent"),
		}
	default:
		return nil
	}
}
