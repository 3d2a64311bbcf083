// Package params defines the domain parameter types held by the crypto
// services registry: DSA and Diffie-Hellman parameter sets and the EC
// implicitly-CA parameters.
package params

import (
	"crypto/elliptic"
	"math/big"
)

// DSAValidationParameters records the FIPS 186 generation seed and counter.
type DSAValidationParameters struct {
	Seed    []byte
	Counter int
}

// DSAParameters is a DSA domain parameter set.
type DSAParameters struct {
	P, Q, G    *big.Int
	Validation *DSAValidationParameters
}

// ModulusBitLen returns the bit length of P.
func (p *DSAParameters) ModulusBitLen() int {
	return p.P.BitLen()
}

// DHValidationParameters records the generation seed and counter of a DH
// parameter set.
type DHValidationParameters struct {
	Seed    []byte
	Counter int
}

// DHParameters is a Diffie-Hellman domain parameter set.
type DHParameters struct {
	P, G, Q *big.Int
	// M is the minimum bit length of a private value.
	M int
	// L is the exact private value length in bits, or zero when unconstrained.
	L int
	// J is the subgroup cofactor, or nil.
	J          *big.Int
	Validation *DHValidationParameters
}

// ModulusBitLen returns the bit length of P.
func (p *DHParameters) ModulusBitLen() int {
	return p.P.BitLen()
}

// ECParameters are the curve parameters used when a key or certificate says
// "implicitly CA".
type ECParameters struct {
	Name  string
	Curve elliptic.Curve
}

// FieldBitLen returns the size of the underlying field in bits.
func (p *ECParameters) FieldBitLen() int {
	return p.Curve.Params().BitSize
}

// ToDH converts a DSA parameter set into the equivalent DH parameter set.
func ToDH(dsa *DSAParameters) *DHParameters {
	pSize := dsa.P.BitLen()
	dh := &DHParameters{
		P: dsa.P,
		G: dsa.G,
		Q: dsa.Q,
		M: chooseLowerBound(pSize),
	}
	if dsa.Validation != nil {
		dh.Validation = &DHValidationParameters{
			Seed:    append([]byte(nil), dsa.Validation.Seed...),
			Counter: dsa.Validation.Counter,
		}
	}
	return dh
}

// chooseLowerBound picks a private value length of at least twice the bits
// of security offered by a modulus of pSize bits.
func chooseLowerBound(pSize int) int {
	switch {
	case pSize <= 1024:
		return 160
	case pSize <= 2048:
		return 224
	case pSize <= 3072:
		return 256
	case pSize <= 7680:
		return 384
	default:
		return 512
	}
}
