package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// optionSymbolRe matches the canonical UNDERLYINGyymmdd{C|P}SSSSSSSS format,
// e.g. AAPL240621C00195000. Strike is encoded as price * 1000, zero-padded
// to 8 digits.
var optionSymbolRe = regexp.MustCompile(`^([A-Z]{1,6})(\d{2})(\d{2})(\d{2})([CP])(\d{8})$`)

// EncodeOptionSymbol builds the canonical option symbol for (underlying,
// expiration, optionType, strike). Any vendor "O:" prefix must already be
// stripped from underlying by the caller.
func EncodeOptionSymbol(underlying string, expiration time.Time, optionType OptionType, strike decimal.Decimal) string {
	underlying = strings.TrimPrefix(strings.ToUpper(underlying), "O:")
	typeChar := "C"
	if optionType == OptionPut {
		typeChar = "P"
	}
	strikeThousandths := strike.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
	return fmt.Sprintf("%s%s%c%08d", underlying, expiration.Format("060102"), typeChar[0], strikeThousandths)
}

// DecodeOptionSymbol losslessly reverses EncodeOptionSymbol, returning the
// underlying, expiration (UTC midnight), option type and strike.
func DecodeOptionSymbol(symbol string) (underlying string, expiration time.Time, optionType OptionType, strike decimal.Decimal, err error) {
	symbol = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(symbol)), "O:")
	m := optionSymbolRe.FindStringSubmatch(symbol)
	if m == nil {
		return "", time.Time{}, "", decimal.Zero, fmt.Errorf("types: malformed option symbol %q", symbol)
	}
	underlying = m[1]
	yy, _ := strconv.Atoi(m[2])
	mm, _ := strconv.Atoi(m[3])
	dd, _ := strconv.Atoi(m[4])
	expiration = time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if m[5] == "P" {
		optionType = OptionPut
	} else {
		optionType = OptionCall
	}
	thousandths, _ := strconv.ParseInt(m[6], 10, 64)
	strike = decimal.New(thousandths, -3)
	return underlying, expiration, optionType, strike, nil
}

// StripVendorPrefix removes a leading "O:" vendor ticker prefix, if present,
// from a raw option symbol. Every symbol the Data Adapter hands to the rest
// of the pipeline, and every symbol placed on a broker order, passes
// through this first.
func StripVendorPrefix(symbol string) string {
	return strings.TrimPrefix(symbol, "O:")
}
