package params

import (
	"crypto/elliptic"
	"encoding/hex"
	"math/big"
	"strings"
)

// Default DSA parameter sets, generated per FIPS 186 with the recorded
// validation seeds.
var (
	dsa512 = mustDSA(
		"fca682ce8e12caba26efccf7110e526db078b05edecbcd1eb4a208f3ae1617ae01f35b91a47e6df63413c5e12ed0899bcd132acd50d99151bdc43ee737592e17",
		"962eddcc369cba8ebb260ee6b6a126d9346e38c5",
		"678471b27a9cf44ee91a49c5147db1a9aaf244f05a434d6486931d2d14271b9e35030b71fd73da179069b32e2935630e1c2062354d0da20a6c416e50be794ca4",
		"b869c82b35d70e1b1ff91b28e37a62ecdc34409b", 123)

	dsa768 = mustDSA(
		"e9e642599d355f37c97ffd3567120b8e25c9cd43e927b3a9670fbec5"+
			"d890141922d2c3b3ad2480093799869d1e846aab49fab0ad26d2ce6a"+
			"22219d470bce7d777d4a21fbe9c270b57f607002f3cef8393694cf45"+
			"ee3688c11a8c56ab127a3daf",
		"9cdbd84c9f1ac2f38d0f80f42ab952e7338bf511",
		"30470ad5a005fb14ce2d9dcd87e38bc7d1b1c5facbaecbe95f190aa7"+
			"a31d23c4dbbcbe06174544401a5b2c020965d8c2bd2171d366844577"+
			"1f74ba084d2029d83c1c158547f3a9f1a2715be23d51ae4d3e5a1f6a"+
			"7064f316933a346d3f529252",
		"77d0f8c4dad15eb8c4f2f8d6726cefd96d5bb399", 263)

	dsa1024 = mustDSA(
		"fd7f53811d75122952df4a9c2eece4e7f611b7523cef4400c31e3f80"+
			"b6512669455d402251fb593d8d58fabfc5f5ba30f6cb9b556cd7813b"+
			"801d346ff26660b76b9950a5a49f9fe8047b1022c24fbba9d7feb7c6"+
			"1bf83b57e7c6a8a6150f04fb83f6d3c51ec3023554135a169132f675"+
			"f3ae2b61d72aeff22203199dd14801c7",
		"9760508f15230bccb292b982a2eb840bf0581cf5",
		"f7e1a085d69b3ddecbbcab5c36b857b97994afbbfa3aea82f9574c0b"+
			"3d0782675159578ebad4594fe67107108180b449167123e84c281613"+
			"b7cf09328cc8a6e13c167a8b547c8d28e0a3ae1e2bb3a675916ea37f"+
			"0bfa213562f1fb627a01243bcca4f1bea8519089a883dfe15ae59f06"+
			"928b665e807b552564014c3bfecf492a",
		"8d5155894229d5e689ee01e6018a237e2cae64cd", 92)

	dsa2048 = mustDSA(
		"95475cf5d93e596c3fcd1d902add02f427f5f3c7210313bb45fb4d5b"+
			"b2e5fe1cbd678cd4bbdd84c9836be1f31c0777725aeb6c2fc38b85f4"+
			"8076fa76bcd8146cc89a6fb2f706dd719898c2083dc8d896f84062e2"+
			"c9c94d137b054a8d8096adb8d51952398eeca852a0af12df83e475aa"+
			"65d4ec0c38a9560d5661186ff98b9fc9eb60eee8b030376b236bc73b"+
			"e3acdbd74fd61c1d2475fa3077b8f080467881ff7e1ca56fee066d79"+
			"506ade51edbb5443a563927dbc4ba520086746175c8885925ebc64c6"+
			"147906773496990cb714ec667304e261faee33b3cbdf008e0c3fa906"+
			"50d97d3909c9275bf4ac86ffcb3d03e6dfc8ada5934242dd6d3bcca2"+
			"a406cb0b",
		"f8183668ba5fc5bb06b5981e6d8b795d30b8978d43ca0ec572e37e09939a9773",
		"42debb9da5b3d88cc956e08787ec3f3a09bba5f48b889a74aaf53174"+
			"aa0fbe7e3c5b8fcd7a53bef563b0e98560328960a9517f4014d3325f"+
			"c7962bf1e049370d76d1314a76137e792f3f0db859d095e4a5b93202"+
			"4f079ecf2ef09c797452b0770e1350782ed57ddf794979dcef23cb96"+
			"f183061965c4ebc93c9c71c56b925955a75f94cccf1449ac43d586d0"+
			"beee43251b0b2287349d68de0d144403f13e802f4146d882e057af19"+
			"b6f6275c6676c8fa0e3ca2713a3257fd1b27d0639f695e347d8d1cf9"+
			"ac819a26ca9b04cb0eb9b7b035988d15bbac65212a55239cfc7e58fa"+
			"e38d7250ab9991ffbc97134025fe8ce04c4399ad96569be91a546f49"+
			"78693c7a",
		"b0b4417601b59cbc9d8ac8f935cadaec4f5fbb2f23785609ae466748d9b5a536", 497)
)

// DefaultDSAParameters returns the built-in DSA parameter sets in ascending
// modulus size: 512, 768, 1024 and 2048 bits.
func DefaultDSAParameters() []*DSAParameters {
	return []*DSAParameters{dsa512, dsa768, dsa1024, dsa2048}
}

// DefaultDHParameters returns the DH equivalents of DefaultDSAParameters.
func DefaultDHParameters() []*DHParameters {
	dsa := DefaultDSAParameters()
	out := make([]*DHParameters, len(dsa))
	for i, p := range dsa {
		out[i] = ToDH(p)
	}
	return out
}

// NamedCurve returns EC parameters for one of the NIST curves supported by
// crypto/elliptic, or nil for an unknown name.
func NamedCurve(name string) *ECParameters {
	var c elliptic.Curve
	switch strings.ToUpper(name) {
	case "P-224", "SECP224R1":
		c = elliptic.P224()
	case "P-256", "SECP256R1", "PRIME256V1":
		c = elliptic.P256()
	case "P-384", "SECP384R1":
		c = elliptic.P384()
	case "P-521", "SECP521R1":
		c = elliptic.P521()
	default:
		return nil
	}
	return &ECParameters{Name: c.Params().Name, Curve: c}
}

func mustDSA(p, q, g, seed string, counter int) *DSAParameters {
	s, err := hex.DecodeString(seed)
	if err != nil {
		panic("params: bad validation seed: " + err.Error())
	}
	return &DSAParameters{
		P:          mustHex(p),
		Q:          mustHex(q),
		G:          mustHex(g),
		Validation: &DSAValidationParameters{Seed: s, Counter: counter},
	}
}

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("params: bad hex constant")
	}
	return v
}
