package registry

import (
	"clientreg/internal/types"

	"github.com/jmespath/go-jmespath"
)

// Filter keeps the views for which the JMESPath expression evaluates to true. Each view is
// presented as {"cnpj": ..., "nome": ...}, e.g. "starts_with(nome, 'Acme')".
// An empty expression keeps everything. A bad expression is a validation error.
func Filter(expression string, views []types.ClientView) ([]types.ClientView, error) {
	if expression == "" {
		return views, nil
	}
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, types.Err(types.ErrValidation, err, "invalid filter expression")
	}
	out := make([]types.ClientView, 0, len(views))
	for _, v := range views {
		match, err := jp.Search(map[string]any{"cnpj": v.CNPJ, "nome": v.Nome})
		if err != nil {
			return nil, types.Err(types.ErrValidation, err, "jmespath: %s", expression)
		}
		matched, ok := match.(bool)
		if !ok {
			return nil, types.Err(types.ErrValidation, nil, "filter must evaluate to a boolean, got %T", match)
		}
		if matched {
			out = append(out, v)
		}
	}
	return out, nil
}
