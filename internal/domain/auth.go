package domain

// ConnectorAuthType is the closed union of credential shapes a merchant can
// store per connector. Each connector accepts exactly one (or a small fixed
// set) of these shapes; anything else fails with ErrFailedToObtainAuthType.
type ConnectorAuthType interface {
	isConnectorAuthType()
}

// HeaderKey carries a single API key sent in a header.
type HeaderKey struct {
	APIKey Secret
}

// BodyKey carries an API key plus one auxiliary identifier (merchant id,
// entity id, app id; the connector decides the meaning of Key1).
type BodyKey struct {
	APIKey Secret
	Key1   Secret
}

// SignatureKey carries an API key, an auxiliary identifier and a signing
// secret.
type SignatureKey struct {
	APIKey    Secret
	Key1      Secret
	APISecret Secret
}

// MultiAuthKey carries the superset shape for connectors with more than three
// credential parts.
type MultiAuthKey struct {
	APIKey    Secret
	Key1      Secret
	Key2      Secret
	APISecret Secret
}

func (HeaderKey) isConnectorAuthType()    {}
func (BodyKey) isConnectorAuthType()      {}
func (SignatureKey) isConnectorAuthType() {}
func (MultiAuthKey) isConnectorAuthType() {}
