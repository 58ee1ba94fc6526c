package deposits

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	referencePrefix = "PC"
	// referenceAlphabet leaves out 0, O, 1 and I so references survive being
	// retyped from a bank statement.
	referenceAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	phoneStemDigits   = 6
	suffixLength      = 4
)

// ReferenceGenerator builds deposit reference numbers of the form
// PC<last six digits of the provider's phone>-<random suffix>. Providers
// without a parseable phone get a longer random code instead.
type ReferenceGenerator struct {
	region string
	random func(n int) string
}

func NewReferenceGenerator(defaultRegion string) *ReferenceGenerator {
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if region == "" {
		region = "ZA"
	}
	return &ReferenceGenerator{region: region, random: randomCode}
}

// Next returns a new candidate. Each call draws a fresh suffix, so retrying
// after ErrDuplicateReference yields a different reference.
func (g *ReferenceGenerator) Next(phone string) string {
	if stem := g.phoneStem(phone); stem != "" {
		return referencePrefix + stem + "-" + g.random(suffixLength)
	}
	return referencePrefix + g.random(2*suffixLength)
}

func (g *ReferenceGenerator) phoneStem(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return ""
	}
	parsed, err := phonenumbers.Parse(phone, g.region)
	if err != nil {
		return ""
	}
	national := phonenumbers.GetNationalSignificantNumber(parsed)
	if len(national) < phoneStemDigits {
		return ""
	}
	return national[len(national)-phoneStemDigits:]
}

// NormalizeReference is applied to both stored and incoming references before
// the exact match.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ref), ""))
}

func randomCode(n int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("deposits: crypto/rand unavailable: " + err.Error())
		}
		b.WriteByte(referenceAlphabet[idx.Int64()])
	}
	return b.String()
}
