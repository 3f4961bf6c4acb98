package templates

import "github.com/liamcoop/recon/rules"

// Builtin returns the templates shipped with the service.
func Builtin() []*rules.TemplateDefinition {
	tmpl := func(id, name, desc, category, complexity string, usage int, rating float64, logic string, conds ...rules.Condition) *rules.TemplateDefinition {
		return &rules.TemplateDefinition{
			RuleDefinition: rules.RuleDefinition{
				ID:          id,
				Name:        name,
				Description: desc,
				Version:     rules.InitialVersion,
				Status:      rules.StatusDraft,
				Conditions:  conds,
				Logic:       logic,
			},
			Category:   category,
			Complexity: complexity,
			UsageCount: usage,
			Rating:     rating,
		}
	}
	and := func(field string, op rules.Operator, value string) rules.Condition {
		return rules.Condition{Field: field, Operator: op, Value: value, Logic: rules.LogicAnd}
	}

	return []*rules.TemplateDefinition{
		tmpl("tpl-bank-exact", "Bank statement exact match",
			"Match bank lines to ledger entries on amount and reference.",
			"banking", ComplexitySimple, 142, 4.7, "c1 AND c2",
			and("amount", rules.OpEquals, "target.amount"),
			and("reference", rules.OpEquals, "target.reference"),
		),
		tmpl("tpl-bank-date-window", "Bank match with value date",
			"Amount, reference and value date must agree.",
			"banking", ComplexityModerate, 87, 4.4, "c1 AND c2 AND c3",
			and("amount", rules.OpEquals, "target.amount"),
			and("reference", rules.OpEquals, "target.reference"),
			and("value_date", rules.OpEquals, "target.value_date"),
		),
		tmpl("tpl-invoice-payment", "Invoice to payment",
			"Match incoming payments to open invoices by invoice number and amount.",
			"receivables", ComplexityModerate, 64, 4.5, "c1 AND c2 AND c3",
			and("invoice_number", rules.OpMatches, `^INV-\d{4,}$`),
			and("invoice_number", rules.OpEquals, "target.invoice_number"),
			and("amount", rules.OpEquals, "target.amount"),
		),
		tmpl("tpl-intercompany", "Intercompany balance",
			"Counterparty accounts and amounts must mirror each other.",
			"intercompany", ComplexityAdvanced, 23, 4.1, "c1 AND c2 AND c3",
			and("account_number", rules.OpEquals, "target.counterparty_account"),
			and("amount", rules.OpEquals, "target.amount"),
			and("currency", rules.OpEquals, "target.currency"),
		),
		tmpl("tpl-card-settlement", "Card settlement tolerance",
			"Settled amount may not exceed the authorised amount.",
			"payments", ComplexitySimple, 51, 4.2, "c1 AND c2",
			and("authorization_id", rules.OpEquals, "target.authorization_id"),
			and("amount", rules.OpLessThan, "target.authorized_amount"),
		),
	}
}
