package intent

import (
	"maps"
	"slices"
)

// PurchaseType is the interaction mode offered to a buyer for a listing.
type PurchaseType string

const (
	PurchaseTypeCart        PurchaseType = "cart"
	PurchaseTypeReservation PurchaseType = "reservation"
	PurchaseTypeContact     PurchaseType = "contact"
)

var reservationCategories = map[string]struct{}{
	"vehicules":              {},
	"immobilier":             {},
	"location-immobiliere":   {},
	"location-vacances":      {},
	"location-vehicules":     {},
	"location-equipements":   {},
	"services":               {},
	"emploi-services":        {},
	"entreprises-vendre":     {},
	"materiel-professionnel": {},
}

var cartCategories = map[string]struct{}{
	"electronique":    {},
	"mode-beaute":     {},
	"maison-jardin":   {},
	"animaux":         {},
	"bebe-enfants":    {},
	"loisirs-hobbies": {},
}

var subcategoryParents = map[string]string{
	"voitures":              "vehicules",
	"motos":                 "vehicules",
	"camions":               "vehicules",
	"vehicules-utilitaires": "vehicules",
	"bateaux":               "vehicules",
	"pieces-auto":           "vehicules",
	"accessoires-auto":      "vehicules",

	"appartement-location": "immobilier",
	"maison-location":      "immobilier",
	"bureau-location":      "immobilier",
	"appartement-vente":    "immobilier",
	"maison-vente":         "immobilier",
	"terrain":              "immobilier",
	"bureau":               "immobilier",
	"local-commercial":     "immobilier",

	"smartphones":              "electronique",
	"tablettes":                "electronique",
	"ordinateurs":              "electronique",
	"laptops":                  "electronique",
	"tv-video":                 "electronique",
	"audio":                    "electronique",
	"consoles-jeux":            "electronique",
	"photo-video":              "electronique",
	"accessoires-electronique": "electronique",

	"vetements-homme":  "mode-beaute",
	"vetements-femme":  "mode-beaute",
	"chaussures":       "mode-beaute",
	"sacs-accessoires": "mode-beaute",
	"bijoux-montres":   "mode-beaute",
	"produits-beaute":  "mode-beaute",

	"meubles":        "maison-jardin",
	"electromenager": "maison-jardin",
	"decoration":     "maison-jardin",
	"jardin":         "maison-jardin",
	"bricolage":      "maison-jardin",

	"chiens":              "animaux",
	"chats":               "animaux",
	"oiseaux":             "animaux",
	"poissons":            "animaux",
	"rongeurs":            "animaux",
	"autres-animaux":      "animaux",
	"accessoires-animaux": "animaux",

	"vetements-bebe":  "bebe-enfants",
	"puericulture":    "bebe-enfants",
	"jouets":          "bebe-enfants",
	"equipement-bebe": "bebe-enfants",

	"sport":      "loisirs-hobbies",
	"velos":      "loisirs-hobbies",
	"camping":    "loisirs-hobbies",
	"musique":    "loisirs-hobbies",
	"livres":     "loisirs-hobbies",
	"collection": "loisirs-hobbies",
	"jeux":       "loisirs-hobbies",
}

// Classify decides which purchase affordance applies to a listing filed under
// categorySlug. An empty parentSlug means the parent is unknown; the static
// subcategory table is consulted before falling back to categorySlug itself.
// Unmapped categories always resolve to PurchaseTypeContact.
func Classify(categorySlug, parentSlug string) PurchaseType {
	resolvedParent := ResolveParent(categorySlug, parentSlug)

	if _, ok := reservationCategories[resolvedParent]; ok {
		return PurchaseTypeReservation
	}
	if _, ok := cartCategories[resolvedParent]; ok {
		return PurchaseTypeCart
	}
	return PurchaseTypeContact
}

// Intent is the classification of one listing with its derived predicates.
type Intent struct {
	PurchaseType        PurchaseType
	CanAddToCart        bool
	RequiresReservation bool
}

func ForListing(categorySlug, parentSlug string) Intent {
	purchaseType := Classify(categorySlug, parentSlug)
	return Intent{
		PurchaseType:        purchaseType,
		CanAddToCart:        purchaseType == PurchaseTypeCart,
		RequiresReservation: purchaseType == PurchaseTypeReservation,
	}
}

func CanAddToCart(categorySlug, parentSlug string) bool {
	return Classify(categorySlug, parentSlug) == PurchaseTypeCart
}

func RequiresReservation(categorySlug, parentSlug string) bool {
	return Classify(categorySlug, parentSlug) == PurchaseTypeReservation
}

// ResolveParent returns the top-level slug used for classification.
func ResolveParent(categorySlug, parentSlug string) string {
	if parentSlug != "" {
		return parentSlug
	}
	if parent, ok := subcategoryParents[categorySlug]; ok {
		return parent
	}
	return categorySlug
}

func ParentOf(subcategorySlug string) (string, bool) {
	parent, ok := subcategoryParents[subcategorySlug]
	return parent, ok
}

func ReservationCategories() []string {
	return slices.Sorted(maps.Keys(reservationCategories))
}

func CartCategories() []string {
	return slices.Sorted(maps.Keys(cartCategories))
}

func MappedSubcategories() []string {
	return slices.Sorted(maps.Keys(subcategoryParents))
}

func (p PurchaseType) String() string {
	return string(p)
}

func (p PurchaseType) IsValid() bool {
	switch p {
	case PurchaseTypeCart, PurchaseTypeReservation, PurchaseTypeContact:
		return true
	default:
		return false
	}
}
