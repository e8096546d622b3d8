package splitwise

// Profile names the fixed columns of a Splitwise export in one language.
// Every column after Currency is a group member.
type Profile struct {
	Name        string
	DateCol     string
	DescCol     string
	CategoryCol string
	CostCol     string
	CurrencyCol string
	// TotalLabel is the description of the trailing summary row.
	TotalLabel string
}

func (p Profile) requiredCols() []string {
	return []string{p.DateCol, p.DescCol, p.CostCol, p.CurrencyCol}
}

// profiles is tried in order during auto-detection. Names are normalised
// (lowercase, trimmed).
var profiles = []Profile{
	{
		Name:        "en",
		DateCol:     "date",
		DescCol:     "description",
		CategoryCol: "category",
		CostCol:     "cost",
		CurrencyCol: "currency",
		TotalLabel:  "total balance",
	},
	{
		Name:        "pt",
		DateCol:     "data",
		DescCol:     "descrição",
		CategoryCol: "categoria",
		CostCol:     "custo",
		CurrencyCol: "moeda",
		TotalLabel:  "saldo total",
	},
	{
		Name:        "es",
		DateCol:     "fecha",
		DescCol:     "descripción",
		CategoryCol: "categoría",
		CostCol:     "costo",
		CurrencyCol: "moneda",
		TotalLabel:  "saldo total",
	},
}
