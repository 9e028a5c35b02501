/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package adapters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// fieldAliases maps each canonical field to the names POS exports actually
// use, in precedence order. Dotted entries are nested paths.
var fieldAliases = map[string][]string{
	"id":             {"id", "transaction_id", "sale_id", "receipt_id", "order_id", "invoice_number", "ref", "reference"},
	"date":           {"date", "timestamp", "date_created", "created_at", "sale_date", "receipt_date", "order_date", "invoice_date"},
	"total":          {"total", "total_amount", "amount", "grand_total", "final_total", "total_price", "sum"},
	"subtotal":       {"subtotal", "sub_total", "net_total", "net_amount"},
	"tax":            {"tax", "tax_amount", "vat", "tax_total"},
	"currency":       {"currency", "currency_code"},
	"customer_name":  {"customer.name", "customer_name", "customer", "customername", "client_name", "buyer_name", "buyer.name"},
	"customer_email": {"customer.email", "customer_email", "email", "customeremail", "customer_mail", "buyer.email"},
	"customer_phone": {"customer.phone", "customer_phone", "phone", "customerphone", "buyer.phone"},
	"payment_method": {"payment_method", "payment_type", "tender", "tender_type"},
	"location":       {"location", "store", "branch", "outlet"},
	"employee":       {"employee", "cashier", "staff", "sold_by"},
	"notes":          {"notes", "comment", "remarks", "description"},
	"items":          {"items", "lines", "line_items", "products", "invoiceitems"},
}

var itemAliases = map[string][]string{
	"description": {"description", "name", "title", "product_name", "item"},
	"quantity":    {"quantity", "qty", "count"},
	"unit_price":  {"unit_price", "price", "unitprice", "rate"},
	"total":       {"total", "total_price", "amount", "line_total"},
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

const fallbackCustomer = "Walk-in Customer"

// lookup resolves one canonical field against a raw record, trying each
// alias in order. Keys match case-insensitively; dotted aliases descend
// into nested maps.
func lookup(record map[string]interface{}, field string) (interface{}, bool) {
	for _, alias := range fieldAliases[field] {
		if v, ok := nestedValue(record, alias); ok {
			return v, true
		}
	}

	return nil, false
}

func nestedValue(record map[string]interface{}, path string) (interface{}, bool) {
	current := interface{}(record)

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}

		v, ok := caseGet(m, key)
		if !ok {
			return nil, false
		}

		current = v
	}

	if current == nil {
		return nil, false
	}

	return current, true
}

func caseGet(m map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := m[key]; ok && v != nil {
		return v, true
	}

	for k, v := range m {
		if v != nil && strings.EqualFold(k, key) {
			return v, true
		}
	}

	return nil, false
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}

		return f
	default:
		return 0
	}
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, true
			}
		}
	case float64:
		return time.Unix(int64(t), 0), true
	}

	return time.Time{}, false
}

// normalizeRecord converts one raw source record into the canonical
// transaction shape, substituting safe defaults for anything unresolvable.
func normalizeRecord(record map[string]interface{}, systemName, defaultCurrency string) models.Transaction {
	tx := models.Transaction{
		SourceSystem: systemName,
		Currency:     defaultCurrency,
		Customer:     models.Customer{Name: fallbackCustomer},
	}

	if v, ok := lookup(record, "id"); ok {
		tx.ID = asString(v)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	tx.Timestamp = time.Now()
	if v, ok := lookup(record, "date"); ok {
		if parsed, ok := asTime(v); ok {
			tx.Timestamp = parsed
		}
	}

	if v, ok := lookup(record, "total"); ok {
		tx.Total = asFloat(v)
	}

	if v, ok := lookup(record, "subtotal"); ok {
		tx.Subtotal = asFloat(v)
	}

	if v, ok := lookup(record, "tax"); ok {
		tx.Tax = asFloat(v)
	}

	if v, ok := lookup(record, "currency"); ok {
		if c := asString(v); c != "" {
			tx.Currency = c
		}
	}

	if v, ok := lookup(record, "customer_name"); ok {
		if name := asString(v); name != "" {
			tx.Customer.Name = name
		}
	}

	if v, ok := lookup(record, "customer_email"); ok {
		tx.Customer.Email = asString(v)
	}

	if v, ok := lookup(record, "customer_phone"); ok {
		tx.Customer.Phone = asString(v)
	}

	if v, ok := lookup(record, "payment_method"); ok {
		tx.PaymentMethod = asString(v)
	}

	if v, ok := lookup(record, "location"); ok {
		tx.Location = asString(v)
	}

	if v, ok := lookup(record, "employee"); ok {
		tx.Employee = asString(v)
	}

	if v, ok := lookup(record, "notes"); ok {
		tx.Notes = asString(v)
	}

	if v, ok := lookup(record, "items"); ok {
		tx.Items = normalizeItems(v)
	}

	// A subtotal-only export still needs a usable total.
	if tx.Total == 0 && tx.Subtotal != 0 {
		tx.Total = tx.Subtotal + tx.Tax
	}

	return tx
}

func normalizeItems(v interface{}) []models.TransactionItem {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}

	items := make([]models.TransactionItem, 0, len(raw))

	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		item := models.TransactionItem{Quantity: 1}

		for field, aliases := range itemAliases {
			for _, alias := range aliases {
				value, ok := caseGet(m, alias)
				if !ok {
					continue
				}

				switch field {
				case "description":
					item.Description = asString(value)
				case "quantity":
					item.Quantity = asFloat(value)
				case "unit_price":
					item.UnitPrice = asFloat(value)
				case "total":
					item.Total = asFloat(value)
				}

				break
			}
		}

		if item.Description == "" {
			item.Description = "Item"
		}

		if item.Total == 0 {
			item.Total = item.UnitPrice * item.Quantity
		}

		items = append(items, item)
	}

	return items
}
