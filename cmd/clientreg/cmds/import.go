package cmds

import (
	"clientreg/internal/registry"
	"clientreg/internal/types"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// ClientsFile is the YAML document accepted by the import command.
type ClientsFile struct {
	Clients []ClientEntry `yaml:"clients"`
}

type ClientEntry struct {
	CNPJ string `yaml:"cnpj"`
	Nome string `yaml:"nome"`
}

// Issued reports the outcome of one imported client. Token is only set on success.
type Issued struct {
	CNPJ   string `yaml:"cnpj"`
	Nome   string `yaml:"nome"`
	Token  string `yaml:"token,omitempty"`
	Status string `yaml:"status"`
}

func ReadClientsFile(path string) (*ClientsFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ClientsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Clients) == 0 {
		return nil, fmt.Errorf("%s: no clients", path)
	}
	return &f, nil
}

// ImportClients registers every client in the file at path. Clients that already exist or
// fail validation are reported and skipped; any other failure stops the import.
func ImportClients(ctx context.Context, svc *registry.Service, path string) ([]Issued, error) {
	f, err := ReadClientsFile(path)
	if err != nil {
		return nil, err
	}
	issued := make([]Issued, 0, len(f.Clients))
	for _, c := range f.Clients {
		token, err := svc.Register(ctx, c.CNPJ, c.Nome)
		outcome := registry.Outcome(err)
		switch {
		case err == nil:
		case errors.Is(err, types.ErrConflict), errors.Is(err, types.ErrValidation):
			log.WithError(err).WithField("cnpj", c.CNPJ).Warn("skipping client")
		default:
			return issued, fmt.Errorf("import %s: %w", c.CNPJ, err)
		}
		issued = append(issued, Issued{CNPJ: c.CNPJ, Nome: c.Nome, Token: token, Status: outcome})
	}
	return issued, nil
}

// WriteIssued prints the import report as YAML. It holds plaintext tokens, which are
// never shown again.
func WriteIssued(w io.Writer, issued []Issued) error {
	b, err := yaml.Marshal(map[string][]Issued{"issued": issued})
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
