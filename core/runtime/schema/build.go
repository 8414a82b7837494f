package schema

import (
	"fmt"

	"github.com/hyperterse/queryengine/core/domain"
)

// Build derives the executable query schema of a validated datamodel for
// one provider.
func Build(datamodel *domain.Datamodel, provider string) (*domain.QuerySchema, error) {
	provider = domain.NormalizeProvider(provider)
	if !domain.IsSupportedProvider(provider) {
		return nil, domain.NewCoreError(domain.CoreQueryError, fmt.Sprintf("no query schema for provider %q", provider), nil)
	}
	if datamodel == nil {
		return nil, domain.NewCoreError(domain.CoreInternalError, "datamodel is nil", nil)
	}

	qs := &domain.QuerySchema{
		Provider: provider,
		Models:   make(map[string]*domain.ModelMapping, len(datamodel.Models)),
		Order:    make([]string, 0, len(datamodel.Models)),
		Enums:    make(map[string]*domain.Enum, len(datamodel.Enums)),
	}

	for _, e := range datamodel.Enums {
		qs.Enums[e.Name] = e
	}

	for _, model := range datamodel.Models {
		mm := domain.NewModelMapping(model)
		mm.PrimaryKey = model.PrimaryKey
		mm.Uniques = model.UniqueFields

		for _, name := range mm.PrimaryKey {
			if _, ok := mm.Field(name); !ok {
				return nil, domain.NewCoreError(domain.CoreQueryError,
					fmt.Sprintf("primary key field %q of model %q is not a scalar field", name, model.Name), nil)
			}
		}

		if !isIgnored(model) {
			mm.Actions = domain.ModelActions
		}
		qs.Models[model.Name] = mm
		qs.Order = append(qs.Order, model.Name)
	}

	return qs, nil
}

func isIgnored(model *domain.Model) bool {
	for _, attr := range model.Attributes {
		if attr.Name == "ignore" {
			return true
		}
	}
	return false
}
