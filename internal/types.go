package internal

import "time"

type ItemSource string

const (
	SourceText  ItemSource = "text"
	SourceCSV   ItemSource = "csv"
	SourceHTML  ItemSource = "html"
	SourceXLSX  ItemSource = "xlsx"
	SourcePDF   ItemSource = "pdf"
	SourceEmail ItemSource = "eml"
	SourceAPI   ItemSource = "api"
)

type OrderItem struct {
	LineNo   int        `json:"lineNo,omitempty"`
	Source   ItemSource `json:"source,omitempty"`
	RawText  string     `json:"rawText"`
	Quantity int        `json:"quantity"`
}

type Product struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type Supplier struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type SupplierPriceOffer struct {
	SupplierID   int     `json:"supplierId"`
	SupplierName string  `json:"supplierName"`
	ProductID    int     `json:"productId"`
	Price        float64 `json:"price"`
}

// CatalogRow is one product joined with one of its offers.
type CatalogRow struct {
	Product Product
	Offer   SupplierPriceOffer
}

type RankedRow struct {
	CatalogRow
	Rank float64
}

type ItemPreference struct {
	UserID       string    `json:"userId"`
	OriginalItem string    `json:"originalItem"`
	ProductID    int       `json:"productId"`
	Frequency    int       `json:"frequency"`
	LastUsed     time.Time `json:"lastUsed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SupplierPreference is keyed by (OriginalItem, ProductID, SupplierID).
// A nil ProductID applies regardless of the resolved product.
type SupplierPreference struct {
	OriginalItem string    `json:"originalItem"`
	ProductID    *int      `json:"productId"`
	SupplierID   int       `json:"supplierId"`
	Frequency    int       `json:"frequency"`
	LastUsed     time.Time `json:"lastUsed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SupplierChoice is one confirmed item -> supplier mapping to learn.
type SupplierChoice struct {
	OriginalItem string `json:"originalItem"`
	ProductID    *int   `json:"productId"`
	SupplierID   int    `json:"supplierId"`
}

type MatchCandidate struct {
	Product      Product            `json:"product"`
	MatchScore   float64            `json:"matchScore"`
	StrategyName string             `json:"strategyName"`
	ChosenOffer  SupplierPriceOffer `json:"chosenOffer"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMedium:
		return 0.7
	default:
		return 0.4
	}
}

const (
	BackOrderSupplier = "back order"

	ReasonBestPrice   = "Best price available"
	ReasonNoSuppliers = "No suppliers available"
)

type SupplierDecision struct {
	SupplierID         *int                 `json:"supplierId"`
	SupplierName       string               `json:"supplierName"`
	Price              *float64             `json:"price"`
	Reason             string               `json:"reason"`
	IsUserPreferred    bool                 `json:"isUserPreferred"`
	Alternatives       []SupplierPriceOffer `json:"alternatives"`
	Confidence         Confidence           `json:"confidence"`
	PreferenceStrength float64              `json:"preferenceStrength"`
}

func (d SupplierDecision) IsBackOrder() bool {
	return d.SupplierName == BackOrderSupplier
}

type PicklistEntry struct {
	OrderItem           OrderItem        `json:"orderItem"`
	MatchedProduct      *Product         `json:"matchedProduct"`
	MatchStrategy       string           `json:"matchStrategy,omitempty"`
	IsPreference        bool             `json:"isPreference"`
	PreferenceFrequency int              `json:"preferenceFrequency,omitempty"`
	SupplierDecision    SupplierDecision `json:"supplierDecision"`
	UnitPrice           *float64         `json:"unitPrice"`
	Price               string           `json:"price"`
	TotalPrice          string           `json:"totalPrice"`
	Error               string           `json:"error,omitempty"`
}

type Summary struct {
	TotalItems        int                `json:"totalItems"`
	TotalQuantity     int                `json:"totalQuantity"`
	TotalPrice        float64            `json:"totalPrice"`
	SupplierTotals    map[string]float64 `json:"supplierTotals"`
	PreferenceMatched int                `json:"preferenceMatched"`
	SystemOptimized   int                `json:"systemOptimized"`
	BackOrdered       int                `json:"backOrdered"`
	Failed            int                `json:"failed"`
	AverageConfidence float64            `json:"averageConfidence"`
}

type Picklist struct {
	BatchID     string          `json:"batchId"`
	UserID      string          `json:"userId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Entries     []PicklistEntry `json:"entries"`
	Summary     Summary         `json:"summary"`
}
