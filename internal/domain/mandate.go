package domain

import "encoding/json"

// MandateReference is the stored-credential handle a connector hands back on
// mandate setup. Persisted externally and replayed on every subsequent
// merchant-initiated use.
type MandateReference struct {
	ConnectorMandateID                 string          `json:"connector_mandate_id,omitempty"`
	PaymentMethodID                    string          `json:"payment_method_id,omitempty"`
	MandateMetadata                    json.RawMessage `json:"mandate_metadata,omitempty"`
	ConnectorMandateRequestReferenceID string          `json:"connector_mandate_request_reference_id,omitempty"`
}

// MandateIDFromConnector wraps a connector-issued identifier.
func MandateIDFromConnector(id string) *MandateReference {
	return &MandateReference{ConnectorMandateID: id}
}
