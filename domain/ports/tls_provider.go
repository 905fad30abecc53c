package ports

// TLSProvider yields PEM encoded certificate material for the listener.
type TLSProvider interface {
	CertificatePEM() ([]byte, error)
	PrivateKeyPEM() ([]byte, error)
}
