// Package connectors manages the data sources records are pulled from.
package connectors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrNotFound         = errors.New("connector not found")
	ErrInvalidConnector = errors.New("invalid connector")
	ErrConnectionFailed = errors.New("connection test failed")
	ErrSyncInProgress   = errors.New("sync already in progress")
)

type Type string

const (
	TypeBank     Type = "bank"
	TypeERP      Type = "erp"
	TypeCSV      Type = "csv"
	TypeAPI      Type = "api"
	TypeDatabase Type = "database"
)

// requiredSettings are the settings a connector of each type needs to reach
// its source.
var requiredSettings = map[Type][]string{
	TypeBank:     {"institution", "accountNumber"},
	TypeERP:      {"system", "baseUrl"},
	TypeCSV:      {"path"},
	TypeAPI:      {"url"},
	TypeDatabase: {"dsn", "table"},
}

func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	_, ok := requiredSettings[t]
	return t, ok
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusSyncing      Status = "syncing"
	StatusError        Status = "error"
)

// Connector is one configured data source.
type Connector struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        Type              `json:"type"`
	Status      Status            `json:"status"`
	Schedule    string            `json:"schedule,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
	LastSync    *time.Time        `json:"lastSync,omitempty"`
	RecordCount int64             `json:"recordCount"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (c *Connector) clone() *Connector {
	cp := *c
	if c.Settings != nil {
		cp.Settings = make(map[string]string, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	if c.LastSync != nil {
		t := *c.LastSync
		cp.LastSync = &t
	}
	return &cp
}

// CreateRequest describes a new connector.
type CreateRequest struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Schedule string            `json:"schedule,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

func (r CreateRequest) validate() (Type, error) {
	if strings.TrimSpace(r.Name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidConnector)
	}
	t, ok := ParseType(r.Type)
	if !ok {
		return "", fmt.Errorf("%w: unknown type %q (must be one of: bank, erp, csv, api, database)", ErrInvalidConnector, r.Type)
	}
	if r.Schedule != "" {
		if _, err := cron.ParseStandard(r.Schedule); err != nil {
			return "", fmt.Errorf("%w: invalid schedule %q: %v", ErrInvalidConnector, r.Schedule, err)
		}
	}
	return t, nil
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	ConnectorID string   `json:"connectorId"`
	Success     bool     `json:"success"`
	LatencyMs   int64    `json:"latencyMs"`
	Message     string   `json:"message"`
	Missing     []string `json:"missing,omitempty"`
}

// SyncResult is the outcome of one sync.
type SyncResult struct {
	ConnectorID string        `json:"connectorId"`
	Records     int64         `json:"records"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Trigger     string        `json:"trigger"`
}
