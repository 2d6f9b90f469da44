package registry

// GenericProductType is the registry's catch-all taxonomy term for
// children's gear that has no tighter mapping.
const GenericProductType = "Children's Products"

// productTypes maps marketplace categories onto the registry's product
// taxonomy. Unmapped categories fall back to GenericProductType.
var productTypes = map[string]string{
	"Strollers":         "Strollers",
	"Car Seats":         "Child Safety Seats",
	"Cribs & Bassinets": "Cribs",
	"Toys":              "Toys",
	"Clothing":          GenericProductType,
	"Feeding":           GenericProductType,
	"Books":             GenericProductType,
	"Other":             GenericProductType,
}

// ProductType returns the registry taxonomy term for a marketplace category
func ProductType(category string) string {
	if t, ok := productTypes[category]; ok {
		return t
	}
	return GenericProductType
}
