package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func TestRegistry_StoresMoneyAsDecimal128(t *testing.T) {
	reg := NewRegistry()
	repair := RepairRequest{
		ID:        "r1",
		Status:    StatusInProgress,
		TotalCost: dec("45.10"),
		Iterations: []Iteration{{
			Seq:         1,
			Description: "brakes",
			Status:      IterationCompleted,
			Cost: &IterationCost{
				Parts: []Part{{Name: "pad", Price: dec("12.55"), Quantity: dec("2")}},
				Labor: dec("20"),
			},
		}},
	}

	raw, err := bson.MarshalWithRegistry(reg, repair)
	require.NoError(t, err)

	assert.Equal(t, bsontype.Decimal128, bson.Raw(raw).Lookup("totalCost").Type)

	var decoded RepairRequest
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &decoded))
	assert.True(t, repair.TotalCost.Equal(decoded.TotalCost))
	require.Len(t, decoded.Iterations, 1)
	require.NotNil(t, decoded.Iterations[0].Cost)
	assert.True(t, dec("12.55").Equal(decoded.Iterations[0].Cost.Parts[0].Price))
	assert.True(t, dec("45.10").Equal(decoded.Iterations[0].Subtotal()))
}

func TestRegistry_DecodesLegacyNumbers(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		name string
		doc  bson.M
		want decimal.Decimal
	}{
		{"double", bson.M{"totalCost": 12.5}, dec("12.5")},
		{"int32", bson.M{"totalCost": int32(7)}, dec("7")},
		{"int64", bson.M{"totalCost": int64(9)}, dec("9")},
		{"string", bson.M{"totalCost": "3.25"}, dec("3.25")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)
			var r RepairRequest
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &r))
			assert.True(t, tt.want.Equal(r.TotalCost), r.TotalCost.String())
		})
	}
}

func TestToDecimal128(t *testing.T) {
	d128, err := ToDecimal128(dec("45.10"))
	require.NoError(t, err)
	assert.Equal(t, "45.10", d128.String())

	_, err = ToDecimal128(dec("1e7000"))
	assert.Error(t, err)

	_, err = bson.MarshalWithRegistry(NewRegistry(), Part{Name: "p", Price: dec("1e7000")})
	assert.Error(t, err)
}
