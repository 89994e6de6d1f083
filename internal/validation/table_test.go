package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid table - work orders",
			table:   "work_orders",
			wantErr: false,
		},
		{
			name:    "valid table - pm tasks",
			table:   "pm_tasks",
			wantErr: false,
		},
		{
			name:    "valid table - cost entries",
			table:   "cost_entries",
			wantErr: false,
		},
		{
			name:    "empty table name",
			table:   "",
			wantErr: true,
			errMsg:  "cannot be empty",
		},
		{
			name:    "uppercase letters",
			table:   "WorkOrders",
			wantErr: true,
			errMsg:  "lowercase letters",
		},
		{
			name:    "digits not allowed",
			table:   "table1",
			wantErr: true,
			errMsg:  "lowercase letters",
		},
		{
			name:    "sql injection attempt",
			table:   "work_orders; drop",
			wantErr: true,
			errMsg:  "lowercase letters",
		},
		{
			name:    "too long",
			table:   strings.Repeat("a", MaxTableNameLen+1),
			wantErr: true,
			errMsg:  "must not exceed",
		},
		{
			name:    "single character",
			table:   "a",
			wantErr: true,
			errMsg:  "lowercase letters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.table)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRecordID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{
			name:    "uuid",
			id:      "3b9e6d1e-8a2f-4c0e-9f67-0a1b2c3d4e5f",
			wantErr: false,
		},
		{
			name:    "client temporary id",
			id:      "WO-temp-1",
			wantErr: false,
		},
		{
			name:    "empty",
			id:      "",
			wantErr: true,
		},
		{
			name:    "contains spaces",
			id:      "wo 42",
			wantErr: true,
		},
		{
			name:    "too long",
			id:      strings.Repeat("x", MaxRecordIDLen+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecordID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
