package merkle

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump_VerifyAndRoundTrip(t *testing.T) {
	tree, err := Build(testClaims(5))
	require.NoError(t, err)

	dump := tree.Dump()
	assert.Equal(t, Format, dump.Format)
	assert.Equal(t, tree.Root(), dump.Root)
	require.Len(t, dump.Entries, 5)
	require.NoError(t, dump.Verify())

	data, err := dump.MarshalIndent()
	require.NoError(t, err)

	var decoded Dump
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Verify())

	entry, ok := decoded.Entry(dump.Entries[2].Claimant)
	require.True(t, ok)
	assert.Equal(t, dump.Entries[2].Proof, entry.Proof)

	decoded.Entries[0].MaxAllocation++
	assert.Error(t, decoded.Verify())
}

func TestParseAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    int
		wantErr bool
	}{
		{
			name: "yaml list",
			doc: `
- address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
  max_allocation: 10
- address: "0x0000000000000000000000000000000000001234"
  max_allocation: 3
`,
			want: 2,
		},
		{
			name: "yaml document",
			doc: `
allowlist:
  - address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
    max_allocation: 10
`,
			want: 1,
		},
		{
			name: "json list",
			doc:  `[{"address":"0x742d35Cc6634C0532925a3b844Bc454e4438f44e","max_allocation":"7"}]`,
			want: 1,
		},
		{
			name:    "bad address",
			doc:     `[{"address":"0x123","max_allocation":1}]`,
			wantErr: true,
		},
		{
			name:    "bad allocation",
			doc:     `[{"address":"0x742d35Cc6634C0532925a3b844Bc454e4438f44e","max_allocation":-1}]`,
			wantErr: true,
		},
		{
			name:    "empty",
			doc:     `[]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseAllowlist([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, claims, tt.want)
			assert.Equal(t, common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"), claims[0].Claimant)
		})
	}
}
