package client

import "strings"

func cToF(c float64) float64 { return c*1.8 + 32 }

func fToC(f float64) float64 { return (f - 32) / 1.8 }

func msToKmh(ms float64) float64 { return ms * 3.6 }

func kmhToMph(kmh float64) float64 { return kmh / 1.609344 }

// unitName strips the namespace from an NWS unit code ("wmoUnit:degC" -> "degC").
func unitName(code string) string {
	if i := strings.LastIndexByte(code, ':'); i >= 0 {
		return code[i+1:]
	}
	return code
}
