package types

import "strings"

const (
	ClientSecretHdrName = "x-client-secret"

	cacheKeyPrefix = "CLIENTES:"
	cacheKeyAll    = cacheKeyPrefix + "ALL"
)

// Client is the durable record of a registered client. SecretEncrypted is the sealed
// form of the bearer secret handed out at registration; the plaintext is never stored.
type Client struct {
	CNPJ            string `json:"cnpj" dynamodbav:"cnpj"`
	Nome            string `json:"nome" dynamodbav:"nome"`
	SecretEncrypted string `json:"secret_enc" dynamodbav:"secret_enc"`
}

// ClientView is the public projection of a Client. It is what gets cached and returned
// by read operations.
type ClientView struct {
	CNPJ string `json:"cnpj"`
	Nome string `json:"nome"`
}

func (c Client) View() ClientView {
	return ClientView{CNPJ: c.CNPJ, Nome: c.Nome}
}

// Normalize trims the identifying fields in place.
func (c *Client) Normalize() {
	c.CNPJ = strings.TrimSpace(c.CNPJ)
	c.Nome = strings.TrimSpace(c.Nome)
}

// CacheKey identifies a response cache entry. Build it with AllClients or ClientByCNPJ;
// the zero value is not a valid key.
type CacheKey struct {
	cnpj string
	all  bool
}

func AllClients() CacheKey { return CacheKey{all: true} }

func ClientByCNPJ(cnpj string) CacheKey { return CacheKey{cnpj: strings.TrimSpace(cnpj)} }

func (k CacheKey) String() string {
	if k.all {
		return cacheKeyAll
	}
	return cacheKeyPrefix + k.cnpj
}

// Kind is a low-cardinality label for the key, used in metrics.
func (k CacheKey) Kind() string {
	if k.all {
		return "all"
	}
	return "client"
}

// KeysFor returns every cache key that can hold data about cnpj.
func KeysFor(cnpj string) []CacheKey {
	return []CacheKey{AllClients(), ClientByCNPJ(cnpj)}
}
