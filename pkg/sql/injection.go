package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a
// bind value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the parameter that failed the check
	ParamValue  any    // The value that was checked
}

// CheckBindValue uses libinjection to detect SQL injection patterns in a
// single bind value.
//
// Only string values are checked. Numbers, booleans, and other types
// cannot carry injection payloads and return nil.
func CheckBindValue(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckBindValues validates every bind value for SQL injection attempts.
// Entity names and month keys arrive here after LLM-adjacent processing,
// so each one is screened even though all binding is positional.
//
// Returns a result per failing parameter; empty means all values are
// clean.
func CheckBindValues(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckBindValue(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
