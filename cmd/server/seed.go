package main

import "github.com/liamcoop/recon/rules"

// demoRules are imported as active rules when demo seeding is on.
func demoRules() []*rules.RuleDefinition {
	return []*rules.RuleDefinition{
		{
			ID:          "amount-match",
			Name:        "Bank amount match",
			Description: "Bank lines must match ledger amount and reference.",
			Conditions: []rules.Condition{
				{Field: "amount", Operator: rules.OpEquals, Value: "target.amount", Logic: rules.LogicAnd},
				{Field: "reference", Operator: rules.OpEquals, Value: "target.reference"},
			},
			Logic: "c1 AND c2",
		},
		{
			ID:          "date-window",
			Name:        "Settlement date",
			Description: "Settlement must be booked on the ledger date.",
			Conditions: []rules.Condition{
				{Field: "settlement_date", Operator: rules.OpEquals, Value: "target.booking_date"},
			},
		},
		{
			ID:          "account-match",
			Name:        "Counterparty account",
			Description: "IBAN format check and counterparty account match.",
			Conditions: []rules.Condition{
				{Field: "iban", Operator: rules.OpMatches, Value: `^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`, FullMatch: true, Logic: rules.LogicAnd},
				{Field: "account_number", Operator: rules.OpEquals, Value: "target.account_number"},
			},
		},
	}
}
