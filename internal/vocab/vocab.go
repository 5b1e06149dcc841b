// Package vocab holds the closed set of canonical data concepts user
// language is mapped onto before touching real columns. Concepts never
// change per query; only their column binding does.
package vocab

import "strings"

type Concept string

const (
	Date          Concept = "date"
	GSTAmount     Concept = "gst_amount"
	NetAmount     Concept = "net_amount"
	TotalAmount   Concept = "total_amount"
	CGSTAmount    Concept = "cgst_amount"
	SGSTAmount    Concept = "sgst_amount"
	IGSTAmount    Concept = "igst_amount"
	Discount      Concept = "discount"
	Customer      Concept = "customer"
	Branch        Concept = "branch"
	Region        Concept = "region"
	Category      Concept = "category"
	Subcategory   Concept = "subcategory"
	PaymentMethod Concept = "payment_method"
	SalesPerson   Concept = "sales_person"
	State         Concept = "state"
	Country       Concept = "country"
)

// All fixes the iteration order so detection is deterministic.
var All = []Concept{
	Date,
	GSTAmount,
	NetAmount,
	TotalAmount,
	CGSTAmount,
	SGSTAmount,
	IGSTAmount,
	Discount,
	Customer,
	Branch,
	Region,
	Category,
	Subcategory,
	PaymentMethod,
	SalesPerson,
	State,
	Country,
}

// Variants maps each concept to its surface forms, ordered by priority.
// User terms and likely column-name spellings both appear here.
var Variants = map[Concept][]string{
	Date: {
		"date", "day", "transaction date", "bill date", "invoice date",
		"rowdate", "transactiondate", "billdate", "invoicedate", "dt",
	},
	GSTAmount: {
		"gst", "tax", "gst amount", "gstamount", "tax amount", "taxamount", "gst_amt",
	},
	NetAmount: {
		"net", "net value", "net amount", "netvalue", "netamount",
	},
	TotalAmount: {
		"total", "total value", "gross", "gross amount", "totalamount", "totalvalue", "grossamount",
	},
	CGSTAmount: {"cgst", "cgst amount", "cgstamount"},
	SGSTAmount: {"sgst", "sgst amount", "sgstamount"},
	IGSTAmount: {"igst", "igst amount", "igstamount"},
	Discount:   {"discount", "discount amount", "discountamount", "disc"},
	Customer: {
		"customer", "client", "party", "agency", "agent", "vendor", "supplier",
		"buyer", "dealer", "distributor", "customer name", "client name",
		"party name", "agency name", "agent name", "customername", "clientname",
		"partyname", "agencyname", "vendorname", "suppliername",
	},
	Branch: {
		"branch", "office", "location", "office location", "branch name",
		"branchname", "officelocation", "outlet", "store",
	},
	Region: {"region", "region name", "regionname", "zone", "area", "territory"},
	Category: {
		"category", "transaction type", "type", "transactiontype",
		"category name", "categoryname",
	},
	Subcategory: {
		"subcategory", "sub category", "sub type", "subtype",
		"transaction subtype", "transactionsubtype", "subcategory name",
	},
	PaymentMethod: {"payment", "payment mode", "payment method", "paymentmethod", "paymentmode"},
	SalesPerson: {
		"sales person", "salesperson", "executive", "sales executive",
		"salesexecutive", "sales executive name",
	},
	State:   {"state", "statename"},
	Country: {"country", "countryname"},
}

// Groupable lists the concepts that make valid grouping keys. Date is a
// valid grouping key; amounts are not.
var Groupable = []Concept{
	Date, Customer, Branch, Region, Category, Subcategory,
	State, Country, PaymentMethod, SalesPerson,
}

// AmountConcepts in the priority order used when picking a default metric
// column.
var AmountConcepts = []Concept{
	GSTAmount, NetAmount, TotalAmount, Discount, CGSTAmount, SGSTAmount, IGSTAmount,
}

// Normalize lowercases and strips punctuation, spaces and underscores so
// "Transaction_Date", "transaction date" and "TransactionDate" all compare
// equal for matching.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '_' {
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		// Keep non-ASCII word runes, drop ASCII punctuation.
		if r > 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
