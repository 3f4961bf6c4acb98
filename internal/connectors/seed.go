package connectors

import "context"

// SeedDemo registers one connector per source type and syncs the ones that
// can connect.
func (r *Registry) SeedDemo(ctx context.Context) error {
	demo := []CreateRequest{
		{Name: "Operating account (First National)", Type: "bank", Schedule: "0 */4 * * *",
			Settings: map[string]string{"institution": "First National", "accountNumber": "****4821"}},
		{Name: "General ledger (NetSuite)", Type: "erp", Schedule: "30 2 * * *",
			Settings: map[string]string{"system": "netsuite", "baseUrl": "https://erp.example.com"}},
		{Name: "Card processor export", Type: "csv",
			Settings: map[string]string{"path": "/data/exports/card-settlements.csv"}},
		{Name: "Payments gateway", Type: "api", Schedule: "*/15 * * * *",
			Settings: map[string]string{"url": "https://payments.example.com/v2"}},
		{Name: "Billing warehouse", Type: "database",
			Settings: map[string]string{"dsn": "postgres://billing-replica/billing"}},
	}
	for _, req := range demo {
		c, err := r.Create(req)
		if err != nil {
			return err
		}
		res, err := r.TestConnection(c.ID)
		if err != nil {
			return err
		}
		if res.Success {
			if _, err := r.Sync(ctx, c.ID, "seed"); err != nil {
				return err
			}
		}
	}
	return nil
}
