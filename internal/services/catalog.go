package services

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type CategoryKey string

const (
	CategoryBankFees         CategoryKey = "bank-fees"
	CategoryCarInsurance     CategoryKey = "car-insurance"
	CategoryMortgageRate     CategoryKey = "mortgage-rate"
	CategoryNewCarPayment    CategoryKey = "new-car-payment"
	CategoryCellPhonePlan    CategoryKey = "cell-phone-plan"
	CategoryHomeInsurance    CategoryKey = "home-insurance"
	CategoryInternetCable    CategoryKey = "internet-cable"
	CategoryRealEstateBroker CategoryKey = "real-estate-broker"
)

// AllCategories lists every supported category in catalog order.
var AllCategories = []CategoryKey{
	CategoryBankFees,
	CategoryCarInsurance,
	CategoryMortgageRate,
	CategoryNewCarPayment,
	CategoryCellPhonePlan,
	CategoryHomeInsurance,
	CategoryInternetCable,
	CategoryRealEstateBroker,
}

func ParseCategory(slug string) (CategoryKey, error) {
	key := CategoryKey(strings.ToLower(strings.TrimSpace(slug)))
	for _, k := range AllCategories {
		if k == key {
			return k, nil
		}
	}
	return "", NewNotFoundError("unknown category")
}

type FieldType string

const (
	FieldSelect FieldType = "select"
	FieldText   FieldType = "text"
)

// Field is one questionnaire step. A field with DependsOn resolves its options
// from the answer to that field through Dependent.
type Field struct {
	Name      string
	Label     string
	Type      FieldType
	Options   []string
	Required  bool
	DependsOn string
	Dependent map[string][]string
}

// OptionsFor resolves the selectable options given the current state.
func (f Field) OptionsFor(state FormState) []string {
	if f.DependsOn == "" {
		return f.Options
	}
	return f.Dependent[state[f.DependsOn]]
}

type FilterKind string

const (
	FilterNumeric     FilterKind = "numeric"
	FilterCategorical FilterKind = "categorical"
)

type Bucket struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FilterGroup is one result filter. Numeric groups read Field from the record
// metrics and match "min-max" buckets; categorical groups read Field from the
// answers, substituting Default when missing.
type FilterGroup struct {
	Name    string
	Kind    FilterKind
	Field   string
	Default string
	Buckets []Bucket
}

// ResultShape describes how stored answers turn into a result record.
type ResultShape struct {
	Primary      string
	PrimaryLabel string
	Numeric      []string
	Derive       func(metrics map[string]float64, answers FormState)
	Filters      []FilterGroup
}

type Category struct {
	ID      int
	Key     CategoryKey
	Name    string
	Fields  []Field
	Results ResultShape
}

func (c *Category) FieldIndex(name string) int {
	for i, f := range c.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (c *Category) Filter(name string) (FilterGroup, bool) {
	for _, g := range c.Results.Filters {
		if g.Name == name {
			return g, true
		}
	}
	return FilterGroup{}, false
}

// Catalog holds the static category definitions.
type Catalog struct {
	categories map[CategoryKey]*Category
}

// NewCatalog builds every category. banks overrides the bank-fees bank list
// when non-empty; year anchors the vehicle year options.
func NewCatalog(banks []string, year int) *Catalog {
	if year <= 0 {
		year = time.Now().Year()
	}
	if len(banks) == 0 {
		banks = DefaultBanks()
	}
	c := &Catalog{categories: map[CategoryKey]*Category{}}
	for i, key := range AllCategories {
		cat := buildCategory(key, banks, year)
		if cat == nil {
			continue
		}
		cat.ID = i + 1
		c.categories[key] = cat
	}
	return c
}

func (c *Catalog) Category(key CategoryKey) (*Category, bool) {
	cat, ok := c.categories[key]
	return cat, ok
}

// Lookup parses slug and resolves its category.
func (c *Catalog) Lookup(slug string) (*Category, error) {
	key, err := ParseCategory(slug)
	if err != nil {
		return nil, err
	}
	cat, ok := c.Category(key)
	if !ok {
		return nil, NewNotFoundError("unknown category")
	}
	return cat, nil
}

func (c *Catalog) List() []*Category {
	out := make([]*Category, 0, len(AllCategories))
	for _, key := range AllCategories {
		if cat, ok := c.categories[key]; ok {
			out = append(out, cat)
		}
	}
	return out
}

func buildCategory(key CategoryKey, banks []string, year int) *Category {
	switch key {
	case CategoryBankFees:
		return &Category{
			Key:  key,
			Name: "Bank Fees",
			Fields: []Field{
				{Name: "bank", Label: "Which bank are you with?", Type: FieldSelect, Options: banks, Required: true},
				{Name: "monthly_fee", Label: "What is your monthly fee?", Type: FieldSelect, Options: intOptions(0, 41, 1), Required: true},
				{Name: "free_transactions", Label: "How many free transactions per month do you have?", Type: FieldSelect, Options: []string{"0", "5", "10", "20", "unlimited"}, Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_fee",
				PrimaryLabel: "Monthly Fee",
				Numeric:      []string{"monthly_fee"},
				Derive: func(m map[string]float64, _ FormState) {
					m["annual_cost"] = m["monthly_fee"] * 12
				},
				Filters: []FilterGroup{
					{Name: "bank", Kind: FilterCategorical, Field: "bank", Default: "Unknown Bank"},
					{Name: "monthly_fee", Kind: FilterNumeric, Field: "monthly_fee", Buckets: []Bucket{
						{Label: "$0-$5", Value: "0-5"}, {Label: "$6-$10", Value: "6-10"},
						{Label: "$11-$15", Value: "11-15"}, {Label: "$16+", Value: "16-999"},
					}},
					{Name: "free_transactions", Kind: FilterCategorical, Field: "free_transactions", Default: "0"},
				},
			},
		}
	case CategoryCarInsurance:
		makes, models := insuranceCarModels()
		return &Category{
			Key:  key,
			Name: "Car Insurance",
			Fields: []Field{
				{Name: "age", Label: "How old are you?", Type: FieldSelect, Options: []string{"18-24", "25-34", "35-44", "45-54", "55-64", "65+"}, Required: true},
				{Name: "current_provider", Label: "Who is your current insurance provider?", Type: FieldSelect, Options: []string{"AllState", "StateFarm", "Progressive", "Geico", "Liberty Mutual", "Other", "None (First Time)"}, Required: true},
				{Name: "annual_premium", Label: "How much do you pay annually for car insurance?", Type: FieldSelect, Options: intOptions(1000, 41, 100), Required: true},
				{Name: "make", Label: "What make of vehicle do you drive?", Type: FieldSelect, Options: makes, Required: true},
				{Name: "model", Label: "What model vehicle do you drive?", Type: FieldSelect, Required: true, DependsOn: "make", Dependent: models},
				{Name: "year", Label: "What year is the vehicle?", Type: FieldSelect, Options: intOptions(year, 25, -1), Required: true},
				{Name: "license_age", Label: "What age did you get your license?", Type: FieldSelect, Options: intOptions(16, 53, 1), Required: true},
				{Name: "claims", Label: "How many claims have you made in the past 6 years?", Type: FieldSelect, Options: []string{"0", "1", "2", "3", "4", "5+"}, Required: true},
				{Name: "city", Label: "What city do you live in?", Type: FieldSelect, Options: []string{"Toronto", "Vancouver", "Montreal", "Calgary", "Ottawa", "Edmonton", "Other"}, Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_premium",
				PrimaryLabel: "Monthly Premium",
				Numeric:      []string{"annual_premium"},
				Derive: func(m map[string]float64, _ FormState) {
					m["monthly_premium"] = m["annual_premium"] / 12
				},
				Filters: []FilterGroup{
					{Name: "provider", Kind: FilterCategorical, Field: "current_provider", Default: "Unknown Provider"},
					{Name: "age_range", Kind: FilterCategorical, Field: "age", Default: "Unknown"},
					{Name: "vehicle_make", Kind: FilterCategorical, Field: "make", Default: "Unknown"},
					{Name: "monthly_premium", Kind: FilterNumeric, Field: "monthly_premium", Buckets: premiumBuckets()},
					{Name: "city", Kind: FilterCategorical, Field: "city", Default: "Unknown"},
				},
			},
		}
	case CategoryMortgageRate:
		return &Category{
			Key:  key,
			Name: "Mortgage Rate",
			Fields: []Field{
				{Name: "bank", Label: "Who is your provider?", Type: FieldSelect, Options: []string{"CIBC", "RBC", "TD", "Scotiabank", "BMO", "National"}, Required: true},
				{Name: "mortgage_amount", Label: "What is your mortgage amount?", Type: FieldSelect, Options: intOptions(100000, 69, 50000), Required: true},
				{Name: "down_payment_percent", Label: "What percentage is your down payment?", Type: FieldSelect, Options: intOptions(5, 10, 5), Required: true},
				{Name: "interest_rate", Label: "What is your interest rate?", Type: FieldSelect, Options: fixedOptions(0, 49, 0.25, 2), Required: true},
				{Name: "term_years", Label: "What is your mortgage term?", Type: FieldSelect, Options: []string{"1 year", "2 years", "3 years", "4 years", "5 years"}, Required: true},
				{Name: "amortization_period", Label: "What is your amortization period?", Type: FieldSelect, Options: []string{"15 years", "20 years", "25 years", "30 years"}, Required: true},
			},
			Results: ResultShape{
				Primary:      "interest_rate",
				PrimaryLabel: "Interest Rate",
				Numeric:      []string{"mortgage_amount", "down_payment_percent", "interest_rate"},
				Derive: func(m map[string]float64, answers FormState) {
					years := leadingInt(answers["amortization_period"], 25)
					principal := m["mortgage_amount"] * (1 - m["down_payment_percent"]/100)
					m["monthly_payment"] = MonthlyPayment(principal, m["interest_rate"], years)
				},
				Filters: []FilterGroup{
					{Name: "bank", Kind: FilterCategorical, Field: "bank", Default: "Unknown Bank"},
					{Name: "term_years", Kind: FilterCategorical, Field: "term_years"},
					{Name: "interest_rate", Kind: FilterNumeric, Field: "interest_rate", Buckets: rateBuckets()},
					{Name: "monthly_payment", Kind: FilterNumeric, Field: "monthly_payment", Buckets: []Bucket{
						{Label: "$0-$1000", Value: "0-1000"}, {Label: "$1001-$2000", Value: "1001-2000"},
						{Label: "$2001-$3000", Value: "2001-3000"}, {Label: "$3000+", Value: "3001-999999"},
					}},
					{Name: "mortgage_amount", Kind: FilterNumeric, Field: "mortgage_amount", Buckets: propertyValueBuckets()},
				},
			},
		}
	case CategoryNewCarPayment:
		makes, models := paymentCarModels()
		return &Category{
			Key:  key,
			Name: "New Car Payment",
			Fields: []Field{
				{Name: "make", Label: "What make is your car?", Type: FieldSelect, Options: makes, Required: true},
				{Name: "model", Label: "What model is your car?", Type: FieldSelect, Required: true, DependsOn: "make", Dependent: models},
				{Name: "monthly_payment", Label: "How much is your monthly payment?", Type: FieldSelect, Options: intOptions(100, 39, 50), Required: true},
				{Name: "interest_rate", Label: "What is your interest rate?", Type: FieldSelect, Options: fixedOptions(0, 31, 0.5, -1), Required: true},
				{Name: "term", Label: "What is your loan term?", Type: FieldSelect, Options: []string{"12 months", "24 months", "36 months", "48 months", "60 months", "72 months", "84 months"}, Required: true},
				{Name: "down_payment", Label: "How much was your down payment?", Type: FieldSelect, Options: intOptions(0, 21, 1000), Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_payment",
				PrimaryLabel: "Monthly Payment",
				Numeric:      []string{"monthly_payment", "interest_rate", "down_payment"},
				Filters: []FilterGroup{
					{Name: "make", Kind: FilterCategorical, Field: "make", Default: "Unknown Make"},
					{Name: "model", Kind: FilterCategorical, Field: "model", Default: "Unknown Model"},
					{Name: "term", Kind: FilterCategorical, Field: "term"},
					{Name: "monthly_payment", Kind: FilterNumeric, Field: "monthly_payment", Buckets: []Bucket{
						{Label: "$0-$300", Value: "0-300"}, {Label: "$301-$500", Value: "301-500"},
						{Label: "$501-$750", Value: "501-750"}, {Label: "$751+", Value: "751-999999"},
					}},
					{Name: "interest_rate", Kind: FilterNumeric, Field: "interest_rate", Buckets: rateBuckets()},
				},
			},
		}
	case CategoryCellPhonePlan:
		data := make([]string, 0, 21)
		for i := 0; i < 21; i++ {
			data = append(data, strconv.Itoa(i*10)+"GB")
		}
		return &Category{
			Key:  key,
			Name: "Cell Phone Plan",
			Fields: []Field{
				{Name: "carrier", Label: "Which carrier do you use?", Type: FieldSelect, Options: []string{"Rogers", "Fido", "Telus", "Bell", "Videotron", "Other"}, Required: true},
				{Name: "monthly_cost", Label: "How much do you pay monthly?", Type: FieldSelect, Options: intOptions(10, 19, 5), Required: true},
				{Name: "data", Label: "How much data do you have?", Type: FieldSelect, Options: data, Required: true},
				{Name: "usa_roaming", Label: "Do you have unlimited calling and texting while in USA?", Type: FieldSelect, Options: []string{"Yes", "No"}, Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_cost",
				PrimaryLabel: "Monthly Cost",
				Numeric:      []string{"monthly_cost"},
				Filters: []FilterGroup{
					{Name: "carrier", Kind: FilterCategorical, Field: "carrier", Default: "Unknown Carrier"},
					{Name: "data_limit", Kind: FilterCategorical, Field: "data", Default: "0GB"},
					{Name: "monthly_cost", Kind: FilterNumeric, Field: "monthly_cost", Buckets: []Bucket{
						{Label: "$0-$50", Value: "0-50"}, {Label: "$51-$100", Value: "51-100"},
						{Label: "$101-$150", Value: "101-150"}, {Label: "$150+", Value: "151-999999"},
					}},
				},
			},
		}
	case CategoryHomeInsurance:
		return &Category{
			Key:  key,
			Name: "Home Insurance",
			Fields: []Field{
				{Name: "city", Label: "What city do you live in?", Type: FieldSelect, Options: []string{"Montreal", "Quebec City", "Laval", "Gatineau", "Longueuil", "Sherbrooke", "Saguenay", "Levis", "Trois-Rivieres", "Terrebonne"}, Required: true},
				{Name: "house_value", Label: "How much is your house worth?", Type: FieldSelect, Options: intOptions(200000, 57, 50000), Required: true},
				{Name: "coverage_level", Label: "What level of coverage do you want?", Type: FieldSelect, Options: []string{"Low", "Medium", "High"}, Required: true},
				{Name: "annual_premium", Label: "How much is your annual premium?", Type: FieldSelect, Options: intOptions(1000, 41, 100), Required: true},
				{Name: "deductible", Label: "What is your deductible?", Type: FieldSelect, Options: intOptions(0, 21, 250), Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_premium",
				PrimaryLabel: "Monthly Premium",
				Numeric:      []string{"house_value", "annual_premium", "deductible"},
				Derive: func(m map[string]float64, _ FormState) {
					m["monthly_premium"] = m["annual_premium"] / 12
				},
				Filters: []FilterGroup{
					{Name: "city", Kind: FilterCategorical, Field: "city", Default: "Unknown"},
					{Name: "coverage_level", Kind: FilterCategorical, Field: "coverage_level", Default: "Unknown"},
					{Name: "monthly_premium", Kind: FilterNumeric, Field: "monthly_premium", Buckets: premiumBuckets()},
					{Name: "house_value", Kind: FilterNumeric, Field: "house_value", Buckets: propertyValueBuckets()},
					{Name: "deductible", Kind: FilterNumeric, Field: "deductible", Buckets: []Bucket{
						{Label: "$0-$500", Value: "0-500"}, {Label: "$501-$1000", Value: "501-1000"},
						{Label: "$1001-$2000", Value: "1001-2000"}, {Label: "$2000+", Value: "2001-999999"},
					}},
				},
			},
		}
	case CategoryInternetCable:
		return &Category{
			Key:  key,
			Name: "Internet & Cable",
			Fields: []Field{
				{Name: "provider", Label: "Who is your provider?", Type: FieldSelect, Options: []string{"Videotron", "Bell", "Fizz", "Virgin", "Other"}, Required: true},
				{Name: "monthly_cost", Label: "How much do you pay per month?", Type: FieldSelect, Options: intOptions(10, 39, 5), Required: true},
				{Name: "speed", Label: "What is your internet speed?", Type: FieldSelect, Options: []string{"100mbps", "200mbps", "300mbps", "400mbps", "500mbps"}, Required: true},
			},
			Results: ResultShape{
				Primary:      "monthly_cost",
				PrimaryLabel: "Monthly Cost",
				Numeric:      []string{"monthly_cost"},
				Filters: []FilterGroup{
					{Name: "provider", Kind: FilterCategorical, Field: "provider", Default: "Unknown Provider"},
					{Name: "speed", Kind: FilterCategorical, Field: "speed"},
					{Name: "monthly_cost", Kind: FilterNumeric, Field: "monthly_cost", Buckets: []Bucket{
						{Label: "$0-$50", Value: "0-50"}, {Label: "$51-$100", Value: "51-100"},
						{Label: "$101-$150", Value: "101-150"}, {Label: "$151+", Value: "151-999"},
					}},
				},
			},
		}
	case CategoryRealEstateBroker:
		return &Category{
			Key:  key,
			Name: "Real Estate Broker",
			Fields: []Field{
				{Name: "agency", Label: "What agency are you with?", Type: FieldSelect, Options: []string{"Royal Lepage", "Remax", "M Immobilier", "Centris", "Century21", "Engel & Volkers", "BLVD Immobilier", "Sotheby's", "Other"}, Required: true},
				{Name: "commission_rate", Label: "What is your commission rate?", Type: FieldSelect, Options: fixedOptions(1, 29, 0.25, 2), Required: true},
				{Name: "agent_name", Label: "What is your agent's name?", Type: FieldText, Required: true},
			},
			Results: ResultShape{
				Primary:      "commission_rate",
				PrimaryLabel: "Commission Rate",
				Numeric:      []string{"commission_rate"},
			},
		}
	}
	return nil
}

// MonthlyPayment is the fixed-rate amortized payment for principal at an
// annual percentage rate over years.
func MonthlyPayment(principal, annualRate float64, years int) float64 {
	if principal <= 0 || years <= 0 {
		return 0
	}
	n := float64(years * 12)
	r := annualRate / 100 / 12
	if r == 0 {
		return principal / n
	}
	f := math.Pow(1+r, n)
	return principal * r * f / (f - 1)
}

func premiumBuckets() []Bucket {
	return []Bucket{
		{Label: "$0-$100", Value: "0-100"}, {Label: "$101-$200", Value: "101-200"},
		{Label: "$201-$300", Value: "201-300"}, {Label: "$300+", Value: "301-999999"},
	}
}

func rateBuckets() []Bucket {
	return []Bucket{
		{Label: "0-3%", Value: "0-3"}, {Label: "3-5%", Value: "3-5"},
		{Label: "5-7%", Value: "5-7"}, {Label: "7%+", Value: "7-100"},
	}
}

func propertyValueBuckets() []Bucket {
	return []Bucket{
		{Label: "$0-$250k", Value: "0-250000"}, {Label: "$250k-$500k", Value: "250000-500000"},
		{Label: "$500k-$750k", Value: "500000-750000"}, {Label: "$750k+", Value: "750000-999999999"},
	}
}

func intOptions(start, count, step int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, strconv.Itoa(start+i*step))
	}
	return out
}

// fixedOptions renders start+i*step with prec decimals; prec < 0 uses the
// shortest representation ("0", "0.5", "1").
func fixedOptions(start float64, count int, step float64, prec int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, strconv.FormatFloat(start+float64(i)*step, 'f', prec, 64))
	}
	return out
}

func leadingInt(s string, def int) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return def
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return def
	}
	return n
}

var baseCarModels = []struct {
	make   string
	models []string
}{
	{"Toyota", []string{"Camry", "Corolla", "RAV4", "Highlander", "Tacoma"}},
	{"Honda", []string{"Civic", "Accord", "CR-V", "Pilot", "HR-V"}},
	{"Ford", []string{"F-150", "Escape", "Explorer", "Mustang", "Edge"}},
	{"Chevrolet", []string{"Silverado", "Equinox", "Malibu", "Traverse", "Tahoe"}},
	{"BMW", []string{"3 Series", "5 Series", "X3", "X5", "7 Series"}},
	{"Mercedes", []string{"C-Class", "E-Class", "GLC", "GLE", "S-Class"}},
}

var extraPaymentModels = []struct {
	make   string
	models []string
}{
	{"Hyundai", []string{"Elantra", "Sonata", "Tucson", "Santa Fe", "Palisade"}},
	{"Kia", []string{"Forte", "K5", "Sportage", "Telluride", "Sorento"}},
	{"Volkswagen", []string{"Jetta", "Passat", "Tiguan", "Atlas", "Golf"}},
	{"Audi", []string{"A3", "A4", "Q3", "Q5", "Q7"}},
}

// insuranceCarModels is the make->model table of the car insurance form,
// which also offers "Other".
func insuranceCarModels() ([]string, map[string][]string) {
	makes := make([]string, 0, len(baseCarModels)+1)
	models := make(map[string][]string, len(baseCarModels)+1)
	for _, m := range baseCarModels {
		makes = append(makes, m.make)
		models[m.make] = m.models
	}
	makes = append(makes, "Other")
	models["Other"] = []string{"Other"}
	return makes, models
}

func paymentCarModels() ([]string, map[string][]string) {
	n := len(baseCarModels) + len(extraPaymentModels)
	makes := make([]string, 0, n)
	models := make(map[string][]string, n)
	for _, m := range baseCarModels {
		makes = append(makes, m.make)
		models[m.make] = m.models
	}
	for _, m := range extraPaymentModels {
		makes = append(makes, m.make)
		models[m.make] = m.models
	}
	return makes, models
}
