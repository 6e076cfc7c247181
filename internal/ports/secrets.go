package ports

// SecretGenerator issues bearer secrets and seals them for storage.
type SecretGenerator interface {
	// Generate returns a fresh plaintext secret and its sealed form.
	Generate() (plaintext string, encrypted string, err error)
	// Reveal opens a sealed secret produced by Generate.
	Reveal(encrypted string) (string, error)
}
