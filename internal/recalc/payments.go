package recalc

import "encoding/json"

// paymentEntry tolerates the two payload shapes the provider has shipped:
// a flat methodId and a nested method object.
type paymentEntry struct {
	MethodID string `json:"methodId"`
	Method   struct {
		ID string `json:"id"`
	} `json:"method"`
}

type paymentEnvelope struct {
	Payments []paymentEntry `json:"payments"`
}

// rawReferencesMethod reports whether an order's raw payload carries a
// payment with the given external method id.
func rawReferencesMethod(raw []byte, methodID string) bool {
	if len(raw) == 0 || methodID == "" {
		return false
	}
	var env paymentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	for _, p := range env.Payments {
		if p.MethodID == methodID || p.Method.ID == methodID {
			return true
		}
	}
	return false
}
