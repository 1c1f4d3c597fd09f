// backend/utils/borough.go
package utils

import "strings"

var boroughNames = map[string]string{
	"1": "MANHATTAN",
	"2": "BRONX",
	"3": "BROOKLYN",
	"4": "QUEENS",
	"5": "STATEN ISLAND",
}

// NormalizeBorough converts DOF numeric borough codes ("1".."5") to the
// borough name. Anything else is trimmed and upper-cased as is.
func NormalizeBorough(code string) string {
	trimmed := strings.TrimSpace(code)
	if name, ok := boroughNames[trimmed]; ok {
		return name
	}
	return strings.ToUpper(trimmed)
}
