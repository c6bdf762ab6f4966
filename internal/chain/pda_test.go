package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress("prog1", []byte("product"), []byte("SN-001"))
	b := DeriveAddress("prog1", []byte("product"), []byte("SN-001"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDeriveAddressSeedOrderMatters(t *testing.T) {
	a := DeriveAddress("prog1", []byte("one"), []byte("two"))
	b := DeriveAddress("prog1", []byte("two"), []byte("one"))
	assert.NotEqual(t, a, b)
}

func TestDeriveAddressSeedBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide; seeds are length-prefixed.
	a := DeriveAddress("prog1", []byte("ab"), []byte("c"))
	b := DeriveAddress("prog1", []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
}

func TestDeriveAddressProgramScoped(t *testing.T) {
	a := DeriveAddress("prog1", []byte("product"), []byte("SN-001"))
	b := DeriveAddress("prog2", []byte("product"), []byte("SN-001"))
	assert.NotEqual(t, a, b)
}

func TestProductAndTransferAddressesDiffer(t *testing.T) {
	product := ProductAddress("prog1", "SN-001")
	transfer := TransferAddress("prog1", "SN-001", "aa", "bb")
	assert.NotEqual(t, product, transfer)
}
